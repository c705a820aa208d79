// Package wireless implements the wireless association manager (spec C6):
// a state machine that associates with a configured SSID, retries on a
// timer, and applies a bounded exponential safety backoff after repeated
// retry failures without ever rebooting the device. The underlying radio is
// abstracted behind the Radio interface so the manager can run against a
// simulated backend on any host, the way the teacher module injects a
// malgo-backed audio source behind an interface rather than reaching for a
// hardware singleton.
package wireless

import "context"

// Credentials names a target network.
type Credentials struct {
	SSID     string
	Password string
}

// Radio is the minimal capability surface the association manager needs
// from the underlying wireless hardware.
type Radio interface {
	Associate(ctx context.Context, creds Credentials) error
	Disassociate() error
	IsAssociated() bool
	RSSI() (int, error)
	ResetSocket() error
}

// Package ota defines the OTA update hook point the orchestrator's main
// tick calls on every iteration (spec.md §4.7 step 2). Update delivery
// itself is out of scope per spec.md's Non-goals; this package preserves
// the call site with a no-op default Servicer.
package ota

import "context"

// Servicer is serviced once per orchestrator tick. A real implementation
// would poll for and apply firmware updates; the default NoOp never does.
type Servicer interface {
	Service(ctx context.Context) error
}

// NoOp is a Servicer that never does anything, preserving the tick's OTA
// hook point without implementing update delivery.
type NoOp struct{}

func (NoOp) Service(_ context.Context) error { return nil }

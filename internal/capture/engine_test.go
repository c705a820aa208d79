package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpel/micrelay/internal/clock"
	"github.com/sarpel/micrelay/internal/logger"
)

func validConfig() Config {
	return Config{SampleRate: 16000, DMABufferCount: 8, DMABufferLen: 256}
}

func newTestEngine(t *testing.T, dev Device) *Engine {
	t.Helper()
	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	e := NewEngine(log, clk, dev, validConfig(), 256)
	require.NoError(t, e.Initialize())
	return e
}

func TestConfig_ValidateRejectsOutOfRangeSampleRate(t *testing.T) {
	t.Parallel()

	cfg := Config{SampleRate: 100, DMABufferCount: 8, DMABufferLen: 256}
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsNonPowerOfTwoBuffer(t *testing.T) {
	t.Parallel()

	cfg := Config{SampleRate: 16000, DMABufferCount: 8, DMABufferLen: 300}
	assert.Error(t, cfg.Validate())
}

func TestEngine_ReadNarrowsTopHalfOfEachWord(t *testing.T) {
	t.Parallel()

	dev := NewFakeDevice()
	e := newTestEngine(t, dev)

	// 0x1234ABCD narrows to the top 16 bits: 0x1234.
	dev.PushFrame([]int32{int32(uint32(0x1234ABCD))})

	out := make([]byte, 2)
	n, err := e.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, byte(0x34), out[0])
	assert.Equal(t, byte(0x12), out[1])
}

func TestEngine_ReadRejectsOddLengthBuffer(t *testing.T) {
	t.Parallel()

	dev := NewFakeDevice()
	e := newTestEngine(t, dev)

	_, err := e.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrOversize)
}

func TestEngine_ReadClassifiesTransientAndIncrementsConsecutive(t *testing.T) {
	t.Parallel()

	dev := NewFakeDevice()
	e := newTestEngine(t, dev)
	dev.PushStatus(StatusTimeout, nil)

	_, err := e.Read(make([]byte, 2))
	assert.Error(t, err)
	assert.Equal(t, 1, e.TransientErrors())
	assert.Equal(t, 1, e.consecutiveErrors)
}

func TestEngine_ReadResetsConsecutiveErrorsOnSuccess(t *testing.T) {
	t.Parallel()

	dev := NewFakeDevice()
	e := newTestEngine(t, dev)
	dev.PushStatus(StatusTimeout, nil)
	dev.PushFrame([]int32{0})

	_, _ = e.Read(make([]byte, 2))
	_, err := e.Read(make([]byte, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, e.consecutiveErrors)
}

func TestEngine_HealthCheckFalseWhenUninitialized(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewRecording()
	clk := clock.NewFake()
	e := NewEngine(log, clk, NewFakeDevice(), validConfig(), 256)
	assert.False(t, e.HealthCheck())
}

func TestEngine_HealthCheckFalseAboveHalfThreshold(t *testing.T) {
	t.Parallel()

	dev := NewFakeDevice()
	e := newTestEngine(t, dev)
	for i := 0; i < MaxConsecutiveFailures/2+1; i++ {
		dev.PushStatus(StatusTimeout, nil)
		_, _ = e.Read(make([]byte, 2))
	}
	assert.False(t, e.HealthCheck())
}

func TestEngine_ReadWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	dev := NewFakeDevice()
	e := newTestEngine(t, dev)
	dev.PushStatus(StatusTimeout, nil)
	dev.PushStatus(StatusTimeout, nil)
	dev.PushFrame([]int32{0})

	n, err := e.ReadWithRetry(make([]byte, 2), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestEngine_FiveTransientFailuresThenSuccess covers spec.md §8 scenario 5:
// five consecutive Timeout results followed by one OK returns the OK bytes,
// counts exactly five transient errors and zero permanent errors, resets
// consecutiveErrors on exit, and never reinitializes (budget is 10).
func TestEngine_FiveTransientFailuresThenSuccess(t *testing.T) {
	t.Parallel()

	dev := NewFakeDevice()
	e := newTestEngine(t, dev)
	for i := 0; i < 5; i++ {
		dev.PushStatus(StatusTimeout, nil)
	}
	dev.PushFrame([]int32{0})

	n, err := e.ReadWithRetry(make([]byte, 2), 6)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 5, e.TransientErrors())
	assert.Equal(t, 0, e.PermanentErrors())
	assert.Equal(t, 0, e.consecutiveErrors)
	assert.Equal(t, 0, e.ReinitCount())
}

// TestEngine_EleventhPermanentFailureTriggersOneReinit covers spec.md §8
// scenario 6: eleven consecutive GenericFail results drive consecutiveErrors
// past MaxConsecutiveFailures, triggering exactly one cleanup+reinitialize
// cycle and one retry attempt.
func TestEngine_EleventhPermanentFailureTriggersOneReinit(t *testing.T) {
	t.Parallel()

	dev := NewFakeDevice()
	e := newTestEngine(t, dev)
	for i := 0; i < 11; i++ {
		dev.PushStatus(StatusGenericFail, nil)
	}

	_, err := e.ReadWithRetry(make([]byte, 2), 11)
	assert.Error(t, err)
	assert.GreaterOrEqual(t, e.PermanentErrors(), 11)
	assert.Equal(t, 1, e.ReinitCount())
}

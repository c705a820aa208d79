package backoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelay_UnjitteredDoublingSaturates(t *testing.T) {
	t.Parallel()

	c := New(Config{MinMs: 5000, MaxMs: 60000, JitterPct: 0})
	want := []uint64{5000, 10000, 20000, 40000, 60000, 60000, 60000, 60000, 60000, 60000}

	for i, w := range want {
		got := c.NextDelay()
		assert.Equalf(t, w, got, "delay %d", i)
	}
}

func TestNextDelay_JitteredStaysWithinBounds(t *testing.T) {
	t.Parallel()

	c := New(Config{MinMs: 1000, MaxMs: 30000, JitterPct: 0.2, Seed: 42})
	for i := 0; i < 50; i++ {
		d := c.NextDelay()
		require.GreaterOrEqualf(t, d, uint64(1000), "iteration %d", i)
		require.LessOrEqualf(t, d, uint64(30000), "iteration %d", i)
	}
}

func TestNextDelay_DeterministicForFixedSeed(t *testing.T) {
	t.Parallel()

	cfg := Config{MinMs: 1000, MaxMs: 30000, JitterPct: 0.2, Seed: 7}
	a := New(cfg)
	b := New(cfg)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.NextDelay(), b.NextDelay())
	}
}

func TestReset_RestoresInitialState(t *testing.T) {
	t.Parallel()

	c := New(Config{MinMs: 5000, MaxMs: 60000, JitterPct: 0})
	c.NextDelay()
	c.NextDelay()
	c.NextDelay()
	require.Greater(t, c.Failures(), uint64(0))

	c.Reset()
	assert.Equal(t, uint64(0), c.Failures())
	assert.Equal(t, uint64(5000), c.CurrentMs())

	assert.Equal(t, uint64(5000), c.NextDelay())
}

func TestNextDelay_NoGlobalRandSeedCollision(t *testing.T) {
	t.Parallel()

	a := New(Config{MinMs: 1000, MaxMs: 2000, JitterPct: 0.5, Seed: 0})
	b := New(Config{MinMs: 1000, MaxMs: 2000, JitterPct: 0.5, Seed: 0})

	assert.Equal(t, a.NextDelay(), b.NextDelay(), "zero seed must fall back to a fixed default, not wall-clock entropy")
}

package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDelay(t *testing.T) {
	t.Parallel()

	p := Policy{Base: 1 * time.Second, Cap: 60 * time.Second, MaxAttempts: 5}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 1 * time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 8 * time.Second},
		{attempt: 4, want: 16 * time.Second},
		{attempt: 5, want: 32 * time.Second},
		{attempt: 6, want: 60 * time.Second}, // capped
		{attempt: 7, want: 60 * time.Second},
		{attempt: 100, want: 60 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, p.Delay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestPolicyDelayEdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("negative attempt gets the base delay", func(t *testing.T) {
		t.Parallel()
		p := Default()
		assert.Equal(t, p.Base, p.Delay(-3))
	})

	t.Run("huge attempt counts do not overflow", func(t *testing.T) {
		t.Parallel()
		p := Policy{Base: time.Hour, Cap: 24 * time.Hour, MaxAttempts: 5}
		assert.Equal(t, 24*time.Hour, p.Delay(63))
		assert.Equal(t, 24*time.Hour, p.Delay(1000))
	})
}

func TestPolicyExhausted(t *testing.T) {
	t.Parallel()

	p := Default()

	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(4))
	assert.True(t, p.Exhausted(5))
	assert.True(t, p.Exhausted(6))
}

func TestDefault(t *testing.T) {
	t.Parallel()

	p := Default()
	assert.Equal(t, 1*time.Second, p.Base)
	assert.Equal(t, 60*time.Second, p.Cap)
	assert.Equal(t, 5, p.MaxAttempts)
}

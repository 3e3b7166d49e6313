package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyStopsOnSuccess(t *testing.T) {
	calls := 0
	ok := Policy{Attempts: 5, Interval: time.Millisecond}.Run(context.Background(), func() bool {
		calls++
		return calls == 3
	})

	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

func TestPolicyExhaustsAttempts(t *testing.T) {
	calls := 0
	ok := Policy{Attempts: 4, Interval: time.Millisecond}.Run(context.Background(), func() bool {
		calls++
		return false
	})

	assert.False(t, ok)
	assert.Equal(t, 4, calls)
}

func TestPolicyZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	Policy{}.Run(context.Background(), func() bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}

func TestPolicyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	ok := Policy{Attempts: 100, Interval: 10 * time.Millisecond}.Run(ctx, func() bool {
		calls++
		if calls == 2 {
			cancel()
		}
		return false
	})

	assert.False(t, ok)
	assert.Equal(t, 2, calls)
}

func TestWait(t *testing.T) {
	assert.True(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Wait(ctx, time.Second))
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("fatal")

	tests := []struct {
		name      string
		attempts  int
		results   []error
		wantErr   error
		wantCalls int
	}{
		{name: "first try", attempts: 3, results: []error{nil}, wantCalls: 1},
		{name: "recovers", attempts: 3, results: []error{transient, transient, nil}, wantCalls: 3},
		{name: "exhausted", attempts: 2, results: []error{transient, transient}, wantErr: transient, wantCalls: 2},
		{name: "permanent stops", attempts: 5, results: []error{Permanent(fatal)}, wantErr: fatal, wantCalls: 1},
		{name: "zero attempts means one", attempts: 0, results: []error{transient}, wantErr: transient, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), RetryPolicy{Attempts: tt.attempts, BaseDelay: time.Millisecond}, func(context.Context) error {
				err := tt.results[calls]
				calls++
				return err
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetry_PermanentUnwrapsToCause(t *testing.T) {
	fatal := errors.New("fatal")
	err := Retry(context.Background(), RetryPolicy{Attempts: 3}, func(context.Context) error {
		return Permanent(fatal)
	})
	assert.Equal(t, fatal, err)
	assert.Nil(t, Permanent(nil))
}

func TestRetry_BudgetStopsRetrying(t *testing.T) {
	start := time.Now()
	err := Retry(context.Background(), RetryPolicy{
		Attempts:  100,
		Budget:    50 * time.Millisecond,
		BaseDelay: 20 * time.Millisecond,
	}, func(context.Context) error { return errBoom })

	assert.ErrorIs(t, err, errBoom)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetry_AttemptTimeout(t *testing.T) {
	err := Retry(context.Background(), RetryPolicy{Attempts: 1, AttemptTimeout: 10 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, RetryPolicy{Attempts: 3}, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	errTemporary := errors.New("temporary")

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		r := New(WithAttempts(3), WithDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond))

		err := r.Execute(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errTemporary
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when attempts run out", func(t *testing.T) {
		calls := 0
		r := New(WithAttempts(2), WithDelay(time.Millisecond))

		err := r.Execute(context.Background(), func() error {
			calls++
			return errTemporary
		})

		assert.ErrorIs(t, err, errTemporary)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := New(WithAttempts(5), WithDelay(time.Second))
		err := r.Execute(ctx, func() error { return errTemporary })

		assert.Error(t, err)
	})

	t.Run("on retry callback", func(t *testing.T) {
		var attempts []uint
		r := New(
			WithAttempts(3),
			WithDelay(time.Millisecond),
			WithOnRetry(func(n uint, err error) { attempts = append(attempts, n) }),
		)

		_ = r.Execute(context.Background(), func() error { return errTemporary })

		require.NotEmpty(t, attempts)
		assert.Equal(t, uint(0), attempts[0])
	})
}

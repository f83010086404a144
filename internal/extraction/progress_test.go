package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimator(t *testing.T) {
	t.Run("advances monotonically and stays capped", func(t *testing.T) {
		e := NewEstimator()
		defer e.Stop()

		last := e.Value()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			v := e.Value()
			assert.GreaterOrEqual(t, v, last)
			assert.LessOrEqual(t, v, progressCap)
			last = v
			time.Sleep(50 * time.Millisecond)
		}
		assert.Greater(t, last, 0)
	})

	t.Run("done snaps to 100", func(t *testing.T) {
		e := NewEstimator()
		e.Done()
		assert.Equal(t, 100, e.Value())
	})

	t.Run("done is idempotent", func(t *testing.T) {
		e := NewEstimator()
		e.Done()
		e.Done()
		assert.Equal(t, 100, e.Value())
	})

	t.Run("a late result after stop does not move the value", func(t *testing.T) {
		e := NewEstimator()
		e.Stop()
		v := e.Value()
		e.Done() // the awaited call resolving after teardown
		assert.Equal(t, v, e.Value())
	})

	t.Run("stop halts the ticker", func(t *testing.T) {
		e := NewEstimator()
		e.Stop()
		v := e.Value()
		time.Sleep(2 * progressInterval)
		assert.Equal(t, v, e.Value())
	})
}

package parallel

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			const n = 257
			var hits [n]atomic.Int32
			For(n, func(i int) { hits[i].Add(1) }, Config{Workers: workers})
			for i := range hits {
				require.Equal(t, int32(1), hits[i].Load(), "index %d", i)
			}
		})
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

func TestForErr_ReturnsLowestFailingIndex(t *testing.T) {
	errLow := errors.New("low")
	errHigh := errors.New("high")
	var ran atomic.Int32

	err := ForErr(10, func(i int) error {
		ran.Add(1)
		switch i {
		case 3:
			return errLow
		case 7:
			return errHigh
		}
		return nil
	}, Config{Workers: 4})

	assert.ErrorIs(t, err, errLow)
	assert.Equal(t, int32(10), ran.Load())

	assert.NoError(t, ForErr(5, func(int) error { return nil }, Config{Workers: 2}))
}

func TestDefaultConfig(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultConfig().Workers, 1)
}

package service_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/vidfetch/vidfetch/internal/service"

	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	b := service.Backoff{Base: time.Second, Max: time.Minute}

	cases := []struct {
		attempt int
		r       float64
		then    time.Duration
	}{
		{1, 0, time.Second},
		{2, 0, 2 * time.Second},
		{3, 0, 4 * time.Second},
		{6, 0, 32 * time.Second},
		{7, 0, time.Minute},
		{60, 0, time.Minute},
		{0, 0, time.Second},
		{1, 0.5, 1100 * time.Millisecond},
		{7, 0.5, 66 * time.Second},
	}
	for _, tc := range cases {
		require.Equal(t, tc.then, b.Delay(tc.attempt, tc.r), "attempt %d r %v", tc.attempt, tc.r)
	}
}

func TestBackoffBounds(t *testing.T) {
	b := service.Backoff{Base: 250 * time.Millisecond, Max: 10 * time.Second}
	for attempt := 1; attempt <= 20; attempt++ {
		base := min(b.Max, b.Base<<(min(attempt, 20)-1))
		for range 100 {
			d := b.Delay(attempt, rand.Float64())
			require.GreaterOrEqual(t, d, base)
			require.LessOrEqual(t, d, base+base/5)
		}
	}
}

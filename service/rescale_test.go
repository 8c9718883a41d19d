package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRescale(t *testing.T) {
	tests := []struct {
		logit float32
		want  int
	}{
		{0, 0},
		{-40, 0},
		{15, 0},
		{15.1, 0},
		{16, 6},
		{20, 30},
		{25.5, 63},
		{31.66, 99},
		{31.67, 100},
		{40, 100},
		{float32(math.Inf(1)), 100},
		{float32(math.Inf(-1)), 0},
	}
	for _, tt := range tests {
		got, err := Rescale(tt.logit)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "logit %v", tt.logit)
	}
}

func TestRescale_NaN(t *testing.T) {
	_, err := Rescale(float32(math.NaN()))
	assert.ErrorIs(t, err, ErrInvalidLogit)
}

func TestRescale_Monotonic(t *testing.T) {
	prev := -1
	for l := float32(0); l < 45; l += 0.05 {
		s, err := Rescale(l)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s, prev)
		assert.GreaterOrEqual(t, s, 0)
		assert.LessOrEqual(t, s, 100)
		prev = s
	}
}

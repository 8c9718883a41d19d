package service

import (
	"fmt"
	"math"
)

// Calibration against the CLIP ViT-B/32 logit range. Keep exact.
const (
	logitOffset = 15
	logitScale  = 6
	minScore    = 0
	maxScore    = 100
)

// Rescale maps a similarity logit onto an integer score in [0, 100].
func Rescale(logit float32) (int, error) {
	x := float64(logit)
	if math.IsNaN(x) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLogit, logit)
	}
	s := (x - logitOffset) * logitScale
	s = math.Min(math.Max(s, minScore), maxScore)
	return int(s), nil
}

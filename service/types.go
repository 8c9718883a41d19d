package service

import (
	"context"
	"errors"
	"image"
)

var (
	ErrInvalidImage = errors.New("invalid image")
	ErrInvalidLogit = errors.New("model returned a NaN logit")
)

// LogitModel produces the raw image/text similarity logit for one drawing and topic.
type LogitModel interface {
	Logit(ctx context.Context, img image.Image, topic string) (float32, error)
}

// Result is the outcome of rating one drawing.
type Result struct {
	Score int     `json:"score"`
	Logit float32 `json:"-"`
}

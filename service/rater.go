package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Rater scores drawings against topics.
type Rater struct {
	model LogitModel
	log   *zap.Logger
}

func NewRater(model LogitModel, log *zap.Logger) *Rater {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rater{model: model, log: log}
}

// Rate decodes the base64 drawing, asks the model for its similarity to topic
// and rescales the logit.
func (r *Rater) Rate(ctx context.Context, topic, payload string) (*Result, error) {
	img, format, err := DecodeImage(payload)
	if err != nil {
		ratingsTotal.WithLabelValues(outcomeInvalidImage).Inc()
		return nil, err
	}

	start := time.Now()
	logit, err := r.model.Logit(ctx, img, topic)
	inferenceSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		ratingsTotal.WithLabelValues(outcomeInferenceFail).Inc()
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	score, err := Rescale(logit)
	if err != nil {
		ratingsTotal.WithLabelValues(outcomeInferenceFail).Inc()
		return nil, err
	}

	ratingsTotal.WithLabelValues(outcomeOK).Inc()
	scores.Observe(float64(score))
	r.log.Debug("rated drawing",
		zap.String("topic", topic),
		zap.String("format", format),
		zap.Float32("logit", logit),
		zap.Int("score", score),
		zap.Duration("took", time.Since(start)),
	)
	return &Result{Score: score, Logit: logit}, nil
}

// Ready reports whether the underlying model can serve requests.
func (r *Rater) Ready(ctx context.Context) error {
	if r.model == nil {
		return errors.New("model not initialized")
	}
	if p, ok := r.model.(interface{ Ready(context.Context) error }); ok {
		return p.Ready(ctx)
	}
	return nil
}

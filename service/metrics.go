package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ratingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clipscore",
		Name:      "ratings_total",
		Help:      "Rating requests by outcome.",
	}, []string{"outcome"})

	inferenceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "clipscore",
		Name:      "inference_seconds",
		Help:      "Time spent computing the similarity logit.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	scores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "clipscore",
		Name:      "score",
		Help:      "Distribution of returned scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
)

const (
	outcomeOK            = "ok"
	outcomeInvalidImage  = "invalid_image"
	outcomeInferenceFail = "inference_error"
)

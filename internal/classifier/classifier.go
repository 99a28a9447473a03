// Package classifier adapts an opaque, pre-trained scoring function into a
// fraud probability, label and confidence.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/akylbek/payment-system/fraud-detector/internal/metrics"
)

// ErrModelUnavailable means no score could be produced. It is the only fatal
// condition of the evaluation pipeline.
var ErrModelUnavailable = errors.New("model unavailable")

// FraudThreshold is the probability (0-100) at or above which a transaction
// is labelled fraudulent.
const FraudThreshold = 50.0

// Scorer returns the probability in [0,1] that a feature vector is fraudulent.
type Scorer interface {
	Score(ctx context.Context, features []float64) (float64, error)
}

// Score is the normalised classifier output.
type Score struct {
	// Probability is in [0,100] with two-decimal precision.
	Probability float64
	IsFraud     bool
	// Confidence is the distance from indifference, max(p, 100-p).
	Confidence float64
}

type Classifier struct {
	scorer Scorer
}

func New(scorer Scorer) *Classifier {
	return &Classifier{scorer: scorer}
}

// Evaluate scores a feature vector. Any failure of the underlying scorer is
// reported as ErrModelUnavailable.
func (c *Classifier) Evaluate(ctx context.Context, features []float64) (Score, error) {
	if c == nil || c.scorer == nil {
		return Score{}, fmt.Errorf("%w: no model loaded", ErrModelUnavailable)
	}

	start := time.Now()
	p, err := c.scorer.Score(ctx, features)
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return Score{}, fmt.Errorf("%w: scorer returned %v", ErrModelUnavailable, p)
	}

	return Normalize(p), nil
}

// Normalize converts a raw probability in [0,1] to a Score. Values outside
// the unit interval are clamped.
func Normalize(p float64) Score {
	p = math.Max(0, math.Min(1, p))
	prob := round2(p * 100)
	return Score{
		Probability: prob,
		IsFraud:     prob >= FraudThreshold,
		Confidence:  math.Max(prob, round2(100-prob)),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

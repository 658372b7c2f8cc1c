package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Client-facing messages for scoring failures.
const (
	MsgNoPrediction   = "Não foi possível realizar a previsão."
	MsgPredictionFail = "Erro durante a predição"
)

// ErrNoPrediction means the classifier answered without a usable positive-class probability.
var ErrNoPrediction = errors.New("classifier returned no positive-class probability")

// PredictionError wraps a failure raised by the classifier itself.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return e.Err.Error()
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// Score validates payload, assembles the feature vector and returns the positive-class
// probability in [0, 1]. Errors are *ValidationError, *PredictionError or ErrNoPrediction.
func Score(ctx context.Context, model Classifier, payload map[string]any) (float64, error) {
	record, err := ParseRecord(payload)
	if err != nil {
		return 0, err
	}
	dist, err := model.PredictProba(ctx, record.Vector())
	if err != nil {
		return 0, &PredictionError{Err: err}
	}
	if len(dist) <= PositiveClass {
		return 0, ErrNoPrediction
	}
	p := dist[PositiveClass]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, ErrNoPrediction
	}
	return p, nil
}

// ErrorMessage renders an error returned by Score the way clients see it.
func ErrorMessage(err error) string {
	var verr *ValidationError
	var perr *PredictionError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &perr):
		return fmt.Sprintf("%s: %v", MsgPredictionFail, perr.Err)
	default:
		return MsgNoPrediction
	}
}

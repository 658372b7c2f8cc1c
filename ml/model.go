package ml

import "context"

// PositiveClass is the index of the "will purchase" class in a predicted distribution.
const PositiveClass = 1

// Classifier is a trained binary model answering predict_proba style calls.
type Classifier interface {
	// PredictProba returns the class distribution for one feature vector.
	PredictProba(ctx context.Context, features []float64) ([]float64, error)
	// NumFeatures is the expected input width, 0 when the artifact does not say.
	NumFeatures() int
	Info() string
}

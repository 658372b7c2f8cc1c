package ml

import (
	"errors"
	"fmt"
)

const (
	ModelDecisionTree = "decision_tree"
	ModelSklearn      = "sklearn"
	ModelLightGBM     = "lightgbm"
	ModelLightGBMJSON = "lightgbm_json"
	ModelXGBoost      = "xgboost"
)

// ErrUnsupportedModel is returned for a model type LoadModel does not know.
var ErrUnsupportedModel = errors.New("unsupported model type")

// ModelTypes lists every value LoadModel accepts.
func ModelTypes() []string {
	return []string{ModelDecisionTree, ModelSklearn, ModelLightGBM, ModelLightGBMJSON, ModelXGBoost}
}

// LoadModel reads the artifact at path as modelType and checks that it accepts the
// ten-column vector built from a customer record.
func LoadModel(modelType, path string) (Classifier, error) {
	var model Classifier
	var err error

	switch modelType {
	case ModelDecisionTree:
		model, err = LoadDecisionTree(path)
	case ModelSklearn, ModelLightGBM, ModelLightGBMJSON, ModelXGBoost:
		model, err = LoadEnsemble(modelType, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
	if err != nil {
		return nil, err
	}

	if n := model.NumFeatures(); n != 0 && n != NumFeatures {
		return nil, fmt.Errorf("model %s expects %d features, records provide %d", path, n, NumFeatures)
	}
	return model, nil
}

package ml

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/dmitryikh/leaves"
	"github.com/dmitryikh/leaves/transformation"
)

// Ensemble wraps a gradient boosted tree model exported by scikit-learn, LightGBM
// or XGBoost. LightGBM and XGBoost artifacts carry their objective, so their output
// is already the positive-class probability. scikit-learn pickles only give the raw
// log-odds, which are passed through the logistic function here.
type Ensemble struct {
	kind  string
	path  string
	model *leaves.Ensemble
	// set when the loaded model still answers in log-odds
	link transformation.Transform
}

// LoadEnsemble reads a leaves-supported artifact of the given kind. Files ending in
// .gz or .gzip are decompressed on the fly.
func LoadEnsemble(kind, path string) (*Ensemble, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".gzip") {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}
	buffered := bufio.NewReader(reader)

	var model *leaves.Ensemble
	switch kind {
	case ModelSklearn:
		model, err = leaves.SKEnsembleFromReader(buffered, true)
	case ModelLightGBM:
		model, err = leaves.LGEnsembleFromReader(buffered, true)
	case ModelLightGBMJSON:
		model, err = leaves.LGEnsembleFromJSON(buffered, true)
	case ModelXGBoost:
		model, err = leaves.XGEnsembleFromReader(buffered, true)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s model %s: %w", kind, path, err)
	}
	if groups := model.NOutputGroups(); groups != 1 {
		return nil, fmt.Errorf("model %s has %d output groups, expected a binary classifier", path, groups)
	}
	ensemble := &Ensemble{kind: kind, path: path, model: model}
	if kind == ModelSklearn && model.Transformation().Type() == transformation.Raw {
		ensemble.link = &transformation.TransformLogistic{}
	}
	return ensemble, nil
}

// PredictProba returns [1-p, p] for one feature vector.
func (e *Ensemble) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(features) != e.model.NFeatures() {
		return nil, fmt.Errorf("got %d features, model expects %d", len(features), e.model.NFeatures())
	}
	p := e.model.PredictSingle(features, 0)
	if e.link != nil {
		out := make([]float64, 1)
		if err := e.link.Transform([]float64{p}, out, 0); err != nil {
			return nil, err
		}
		p = out[0]
	}
	if math.IsNaN(p) {
		return nil, fmt.Errorf("model %s returned NaN", e.path)
	}
	return []float64{1 - p, p}, nil
}

func (e *Ensemble) NumFeatures() int {
	return e.model.NFeatures()
}

func (e *Ensemble) Info() string {
	return fmt.Sprintf("%s ensemble (%s), %d estimators, %s", e.kind, e.model.Name(), e.model.NEstimators(), e.path)
}

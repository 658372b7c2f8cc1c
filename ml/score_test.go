package ml

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	dist []float64
	err  error
}

func (s *stubModel) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	return s.dist, s.err
}

func (s *stubModel) NumFeatures() int { return NumFeatures }

func (s *stubModel) Info() string { return "stub" }

func TestScoreWithDecisionTree(t *testing.T) {
	model, err := LoadModel(ModelDecisionTree, filepath.Join("testdata", "tree.json"))
	require.NoError(t, err)

	// Qtde_Compras 3 goes right, Valor_Compra 1200.5/4 = 300.125 goes left: 70%
	p, err := Score(context.Background(), model, validPayload())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, p, 1e-9)
	assert.Equal(t, 70.0, ProbabilityPercent(p))
}

func TestScoreErrors(t *testing.T) {
	payload := validPayload()

	_, err := Score(context.Background(), &stubModel{err: errors.New("boom")}, payload)
	var perr *PredictionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "boom", perr.Error())

	_, err = Score(context.Background(), &stubModel{dist: []float64{1}}, payload)
	assert.ErrorIs(t, err, ErrNoPrediction)

	_, err = Score(context.Background(), &stubModel{dist: []float64{0.5, 1.2}}, payload)
	assert.ErrorIs(t, err, ErrNoPrediction)

	delete(payload, "Idade")
	_, err = Score(context.Background(), &stubModel{dist: []float64{0.5, 0.5}}, payload)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestErrorMessage(t *testing.T) {
	payload := validPayload()
	cases := map[string]struct {
		model Classifier
		want  string
	}{
		"classifier failure": {&stubModel{err: errors.New("boom")}, "Erro durante a predição: boom"},
		"single class":       {&stubModel{dist: []float64{1}}, MsgNoPrediction},
		"not a probability":  {&stubModel{dist: []float64{0.5, math.NaN()}}, MsgNoPrediction},
	}
	for name, tc := range cases {
		_, err := Score(context.Background(), tc.model, payload)
		require.Error(t, err, name)
		assert.Equal(t, tc.want, ErrorMessage(err), name)
	}

	delete(payload, "Categoria")
	_, err := Score(context.Background(), &stubModel{dist: []float64{0.5, 0.5}}, payload)
	assert.Equal(t, "Faltando as seguinte entradas: ['Categoria'].", ErrorMessage(err))
}

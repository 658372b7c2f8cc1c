package ml

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() map[string]any {
	return map[string]any{
		"Idade":              json.Number("34"),
		"Gênero":             json.Number("1"),
		"Venda_Anual":        json.Number("1200.5"),
		"Qtde_Compras":       json.Number("3"),
		"Categoria":          json.Number("2"),
		"Tempo_Site":         json.Number("20"),
		"Fidelidade":         true,
		"Desconto_Utilizado": json.Number("0"),
	}
}

func TestFeatureNamesOrder(t *testing.T) {
	names := FeatureNames()
	require.Len(t, names, NumFeatures)
	assert.Equal(t, FeatureColumns(), names[:8])
	assert.Equal(t, []string{"Tempo_Compra", "Valor_Compra"}, names[8:])

	names[0] = "changed"
	assert.Equal(t, "Idade", FeatureNames()[0])
}

func TestParseRecordBuildsVector(t *testing.T) {
	record, err := ParseRecord(validPayload())
	require.NoError(t, err)

	assert.Equal(t, []float64{34, 1, 1200.5, 3, 2, 20, 1, 0, 5, 300.125}, record.Vector())
}

func TestDeriveUsesPurchaseCountPlusOne(t *testing.T) {
	record := CustomerRecord{AnnualSales: 900, TimeOnSite: 45, Purchases: 0}
	timePerPurchase, valuePerPurchase := record.Derive()
	assert.Equal(t, 45.0, timePerPurchase)
	assert.Equal(t, 900.0, valuePerPurchase)
}

func TestParseRecordListsMissingInColumnOrder(t *testing.T) {
	payload := validPayload()
	delete(payload, "Tempo_Site")
	delete(payload, "Idade")
	delete(payload, "Gênero")

	_, err := ParseRecord(payload)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Idade", "Gênero", "Tempo_Site"}, verr.Missing)
	assert.Equal(t, "Faltando as seguinte entradas: ['Idade', 'Gênero', 'Tempo_Site'].", err.Error())
}

func TestParseRecordNormalizesKeys(t *testing.T) {
	payload := validPayload()
	delete(payload, "Gênero")
	payload["Ge\u0302nero"] = json.Number("0")

	record, err := ParseRecord(payload)
	require.NoError(t, err)
	assert.Equal(t, 0.0, record.Gender)
}

func TestParseRecordRejectsNonNumeric(t *testing.T) {
	payload := validPayload()
	payload["Idade"] = "34"
	payload["Categoria"] = nil
	payload["Tempo_Site"] = []any{json.Number("1")}

	_, err := ParseRecord(payload)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Idade", "Categoria", "Tempo_Site"}, verr.NonNumeric)
	assert.True(t, strings.HasPrefix(err.Error(), "Entradas com valores não numéricos"))
}

func TestParseRecordRangeRules(t *testing.T) {
	payload := validPayload()
	payload["Qtde_Compras"] = json.Number("-1")
	payload["Desconto_Utilizado"] = json.Number("2")

	_, err := ParseRecord(payload)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{"Qtde_Compras", "Desconto_Utilizado"}, verr.OutOfRange)
}

func TestParseRecordIgnoresUnknownKeys(t *testing.T) {
	payload := validPayload()
	payload["Cidade"] = "Recife"

	_, err := ParseRecord(payload)
	assert.NoError(t, err)
}

func TestProbabilityPercent(t *testing.T) {
	assert.Equal(t, 78.0, ProbabilityPercent(0.7834))
	assert.Equal(t, 0.0, ProbabilityPercent(0.001))
	assert.Equal(t, 100.0, ProbabilityPercent(1))

	// exact binary ties round to the even percentage
	ties := map[float64]float64{0.125: 12, 0.375: 38, 0.625: 62, 0.875: 88, 0.5: 50}
	for p, want := range ties {
		assert.Equal(t, want, ProbabilityPercent(p), "p=%v", p)
	}
}

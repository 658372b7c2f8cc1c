package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

const (
	ColAge          = "Idade"
	ColGender       = "Gênero"
	ColAnnualSales  = "Venda_Anual"
	ColPurchases    = "Qtde_Compras"
	ColCategory     = "Categoria"
	ColTimeOnSite   = "Tempo_Site"
	ColLoyalty      = "Fidelidade"
	ColDiscountUsed = "Desconto_Utilizado"

	ColTimePerPurchase  = "Tempo_Compra"
	ColValuePerPurchase = "Valor_Compra"
)

// NumFeatures is the width of the vector handed to a classifier.
const NumFeatures = 10

var featureColumns = []string{
	ColAge,
	ColGender,
	ColAnnualSales,
	ColPurchases,
	ColCategory,
	ColTimeOnSite,
	ColLoyalty,
	ColDiscountUsed,
}

var derivedColumns = []string{
	ColTimePerPurchase,
	ColValuePerPurchase,
}

// FeatureColumns returns the raw input columns in model order.
func FeatureColumns() []string {
	return append([]string(nil), featureColumns...)
}

// FeatureNames returns every model input column, raw ones first, then the derived ratios.
func FeatureNames() []string {
	names := make([]string, 0, NumFeatures)
	names = append(names, featureColumns...)
	return append(names, derivedColumns...)
}

// CustomerRecord is one validated scoring request.
type CustomerRecord struct {
	Age          float64 `json:"Idade"`
	Gender       float64 `json:"Gênero"`
	AnnualSales  float64 `json:"Venda_Anual"`
	Purchases    float64 `json:"Qtde_Compras" validate:"gte=0"`
	Category     float64 `json:"Categoria"`
	TimeOnSite   float64 `json:"Tempo_Site"`
	Loyalty      float64 `json:"Fidelidade" validate:"min=0,max=1"`
	DiscountUsed float64 `json:"Desconto_Utilizado" validate:"min=0,max=1"`
}

// Derive computes time-per-purchase and value-per-purchase.
func (r CustomerRecord) Derive() (timePerPurchase, valuePerPurchase float64) {
	denom := r.Purchases + 1
	return r.TimeOnSite / denom, r.AnnualSales / denom
}

// Vector lays the record out in FeatureNames order.
func (r CustomerRecord) Vector() []float64 {
	timePerPurchase, valuePerPurchase := r.Derive()
	return []float64{
		r.Age,
		r.Gender,
		r.AnnualSales,
		r.Purchases,
		r.Category,
		r.TimeOnSite,
		r.Loyalty,
		r.DiscountUsed,
		timePerPurchase,
		valuePerPurchase,
	}
}

func (r *CustomerRecord) set(column string, v float64) {
	switch column {
	case ColAge:
		r.Age = v
	case ColGender:
		r.Gender = v
	case ColAnnualSales:
		r.AnnualSales = v
	case ColPurchases:
		r.Purchases = v
	case ColCategory:
		r.Category = v
	case ColTimeOnSite:
		r.TimeOnSite = v
	case ColLoyalty:
		r.Loyalty = v
	case ColDiscountUsed:
		r.DiscountUsed = v
	}
}

// ValidationError reports which columns made a payload unusable. Only one of the
// slices is populated: the first failing stage wins.
type ValidationError struct {
	Missing    []string
	NonNumeric []string
	OutOfRange []string
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("Faltando as seguinte entradas: %s.", pyList(e.Missing))
	case len(e.NonNumeric) > 0:
		return fmt.Sprintf("Entradas com valores não numéricos: %s.", pyList(e.NonNumeric))
	default:
		return fmt.Sprintf("Entradas fora do intervalo permitido: %s.", pyList(e.OutOfRange))
	}
}

func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "'" + item + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ParseRecord turns a decoded JSON object into a CustomerRecord. Keys are compared
// after NFC normalization; unknown keys are ignored.
func ParseRecord(payload map[string]any) (CustomerRecord, error) {
	var record CustomerRecord
	normalized := make(map[string]any, len(payload))
	for key, value := range payload {
		normalized[norm.NFC.String(key)] = value
	}

	var missing []string
	for _, column := range featureColumns {
		if _, ok := normalized[column]; !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return record, &ValidationError{Missing: missing}
	}

	var nonNumeric []string
	for _, column := range featureColumns {
		v, ok := toFloat(normalized[column])
		if !ok {
			nonNumeric = append(nonNumeric, column)
			continue
		}
		record.set(column, v)
	}
	if len(nonNumeric) > 0 {
		return record, &ValidationError{NonNumeric: nonNumeric}
	}

	if err := recordValidator().Struct(record); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return record, err
		}
		outOfRange := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			outOfRange = append(outOfRange, fe.Field())
		}
		return record, &ValidationError{OutOfRange: outOfRange}
	}
	return record, nil
}

func toFloat(value any) (float64, bool) {
	var v float64
	switch x := value.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case float64:
		v = x
	case int:
		v = float64(x)
	case bool:
		if x {
			v = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ProbabilityPercent rounds p to two decimals, half to even, and expresses it as
// a whole percentage: 0.625 gives 62, 0.875 gives 88.
func ProbabilityPercent(p float64) float64 {
	return math.RoundToEven(p * 100)
}

package model

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aldikf/airfare-price-service/internal/features"
)

// ErrMissingModelArtifact is returned when the artifact file is absent or unreadable.
var ErrMissingModelArtifact = errors.New("model artifact unavailable")

// Predictor is the inference contract: one feature row in, one price out.
type Predictor interface {
	Predict(row features.FeatureRow) (float64, error)
	Info() Info
}

// Info identifies a loaded model.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PredictorFunc adapts a plain function to Predictor.
type PredictorFunc func(row features.FeatureRow) (float64, error)

// Predict calls f(row).
func (f PredictorFunc) Predict(row features.FeatureRow) (float64, error) {
	return f(row)
}

// Info returns a fixed identity for function-backed predictors.
func (f PredictorFunc) Info() Info {
	return Info{Name: "func", Version: "0"}
}

// Artifact is the serialized form of a fitted linear regression over the feature schema.
// Categorical columns are one-hot encoded; levels absent from the artifact contribute nothing.
// Numeric columns are imputed when missing, then standardized with Mean and Scale.
type Artifact struct {
	Name        string                        `yaml:"name" validate:"required"`
	Version     string                        `yaml:"version" validate:"required"`
	Target      string                        `yaml:"target"`
	Features    []string                      `yaml:"features" validate:"required,dive,required"`
	Intercept   float64                       `yaml:"intercept"`
	Numeric     map[string]NumericTerm        `yaml:"numeric" validate:"required,dive"`
	Categorical map[string]map[string]float64 `yaml:"categorical"`
}

// NumericTerm holds the fitted parameters of one numeric column.
type NumericTerm struct {
	Coef   float64 `yaml:"coef"`
	Impute float64 `yaml:"impute"`
	Mean   float64 `yaml:"mean"`
	Scale  float64 `yaml:"scale" validate:"gte=0"`
}

// LinearModel evaluates an Artifact. Immutable after construction.
type LinearModel struct {
	info        Info
	intercept   float64
	numeric     map[string]NumericTerm
	categorical map[string]map[string]float64
}

// Load reads and checks the artifact at path.
func Load(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMissingModelArtifact, path, err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode parses an artifact document (YAML or JSON) and builds the model.
func Decode(data []byte) (*LinearModel, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty artifact", ErrMissingModelArtifact)
	}
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: parse artifact: %v", ErrMissingModelArtifact, err)
	}
	return New(a)
}

// New checks a against the feature schema and returns the model.
func New(a Artifact) (*LinearModel, error) {
	if err := validator.New().Struct(a); err != nil {
		return nil, fmt.Errorf("%w: invalid artifact: %v", ErrMissingModelArtifact, err)
	}
	if err := checkSchema(a); err != nil {
		return nil, err
	}
	numeric := make(map[string]NumericTerm, len(a.Numeric))
	for col, term := range a.Numeric {
		if term.Scale == 0 {
			term.Scale = 1
		}
		numeric[col] = term
	}
	categorical := make(map[string]map[string]float64, len(a.Categorical))
	for col, levels := range a.Categorical {
		cp := make(map[string]float64, len(levels))
		for lvl, coef := range levels {
			cp[lvl] = coef
		}
		categorical[col] = cp
	}
	return &LinearModel{
		info:        Info{Name: a.Name, Version: a.Version},
		intercept:   a.Intercept,
		numeric:     numeric,
		categorical: categorical,
	}, nil
}

// checkSchema requires the artifact's column list to equal the feature schema and
// every column to have exactly one term of the matching kind.
func checkSchema(a Artifact) error {
	if err := features.ValidateColumns(a.Features); err != nil {
		return err
	}
	for col := range a.Numeric {
		if !inSchema(col) || features.IsCategorical(col) {
			return fmt.Errorf("%w: numeric term for %q", features.ErrSchemaMismatch, col)
		}
	}
	for col := range a.Categorical {
		if !features.IsCategorical(col) {
			return fmt.Errorf("%w: categorical term for %q", features.ErrSchemaMismatch, col)
		}
	}
	for _, col := range a.Features {
		if features.IsCategorical(col) {
			if _, ok := a.Categorical[col]; !ok {
				return fmt.Errorf("%w: no categorical term for %q", features.ErrSchemaMismatch, col)
			}
			continue
		}
		if _, ok := a.Numeric[col]; !ok {
			return fmt.Errorf("%w: no numeric term for %q", features.ErrSchemaMismatch, col)
		}
	}
	return nil
}

func inSchema(col string) bool {
	for _, c := range features.Columns() {
		if c == col {
			return true
		}
	}
	return false
}

// Predict evaluates the regression for one row.
func (m *LinearModel) Predict(row features.FeatureRow) (float64, error) {
	y := m.intercept
	for _, v := range row.Values() {
		if features.IsCategorical(v.Column) {
			y += m.categorical[v.Column][v.Level]
			continue
		}
		term, ok := m.numeric[v.Column]
		if !ok {
			return 0, fmt.Errorf("%w: no term for %q", features.ErrSchemaMismatch, v.Column)
		}
		x := v.Number
		if v.Null {
			x = term.Impute
		}
		y += term.Coef * (x - term.Mean) / term.Scale
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("model produced non-finite value %v", y)
	}
	return y, nil
}

// Info returns the model's name and version.
func (m *LinearModel) Info() Info {
	return m.info
}

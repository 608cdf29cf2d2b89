// Package resources owns the process-wide reference data: the airport directory
// and the fare model. Each is read from storage at most once; later calls return
// the memoized value or error.
package resources

import (
	"sync"

	"github.com/aldikf/airfare-price-service/internal/airports"
	"github.com/aldikf/airfare-price-service/internal/model"
)

// Loaders builds Resources from storage. Tests substitute their own.
type Loaders struct {
	Airports func(path string) (*airports.Directory, error)
	Model    func(path string) (*model.LinearModel, error)
}

// DefaultLoaders reads the CSV table and the model artifact from disk.
var DefaultLoaders = Loaders{
	Airports: airports.Load,
	Model:    model.Load,
}

// Resources memoizes the airport directory and model.
type Resources struct {
	airportsPath string
	modelPath    string

	airports func() (*airports.Directory, error)
	model    func() (*model.LinearModel, error)
}

// New returns Resources reading from the given paths with DefaultLoaders.
func New(airportsPath, modelPath string) *Resources {
	return NewWithLoaders(airportsPath, modelPath, DefaultLoaders)
}

// NewWithLoaders returns Resources using custom loaders.
func NewWithLoaders(airportsPath, modelPath string, l Loaders) *Resources {
	return &Resources{
		airportsPath: airportsPath,
		modelPath:    modelPath,
		airports:     sync.OnceValues(func() (*airports.Directory, error) { return l.Airports(airportsPath) }),
		model:        sync.OnceValues(func() (*model.LinearModel, error) { return l.Model(modelPath) }),
	}
}

// Airports returns the airport directory, loading it on first use.
func (r *Resources) Airports() (*airports.Directory, error) {
	return r.airports()
}

// Model returns the fare model, loading it on first use.
func (r *Resources) Model() (*model.LinearModel, error) {
	return r.model()
}

// Load initializes both resources and returns the first error.
// Call once at startup; the process must not serve predictions if it fails.
func (r *Resources) Load() error {
	if _, err := r.Airports(); err != nil {
		return err
	}
	if _, err := r.Model(); err != nil {
		return err
	}
	return nil
}

// Ready reports whether both resources loaded successfully.
func (r *Resources) Ready() bool {
	return r.Load() == nil
}

// Paths returns the configured airport table and model artifact paths.
func (r *Resources) Paths() (airportsPath, modelPath string) {
	return r.airportsPath, r.modelPath
}

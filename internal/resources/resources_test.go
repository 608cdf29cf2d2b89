package resources

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aldikf/airfare-price-service/internal/airports"
	"github.com/aldikf/airfare-price-service/internal/model"
)

func countingLoaders(airportCalls, modelCalls *int, mu *sync.Mutex, modelErr error) Loaders {
	return Loaders{
		Airports: func(path string) (*airports.Directory, error) {
			mu.Lock()
			*airportCalls++
			mu.Unlock()
			return airports.Parse(strings.NewReader("name,code,latitude,longitude\nA,AAA,0,0\n"))
		},
		Model: func(path string) (*model.LinearModel, error) {
			mu.Lock()
			*modelCalls++
			mu.Unlock()
			return nil, modelErr
		},
	}
}

// TestResources_LoadsOnce verifies concurrent and repeated access reads storage only once.
func TestResources_LoadsOnce(t *testing.T) {
	var mu sync.Mutex
	var airportCalls, modelCalls int
	r := NewWithLoaders("airports.csv", "model.yaml", countingLoaders(&airportCalls, &modelCalls, &mu, nil))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Airports()
			_, _ = r.Model()
		}()
	}
	wg.Wait()
	_ = r.Load()

	if airportCalls != 1 || modelCalls != 1 {
		t.Fatalf("loader calls = (%d, %d), want (1, 1)", airportCalls, modelCalls)
	}
}

// TestResources_ErrorIsMemoized verifies a failed load is not retried.
func TestResources_ErrorIsMemoized(t *testing.T) {
	var mu sync.Mutex
	var airportCalls, modelCalls int
	boom := errors.New("boom")
	r := NewWithLoaders("a", "m", countingLoaders(&airportCalls, &modelCalls, &mu, boom))

	for i := 0; i < 3; i++ {
		if err := r.Load(); !errors.Is(err, boom) {
			t.Fatalf("Load() error = %v, want boom", err)
		}
	}
	if r.Ready() {
		t.Error("Ready() = true after failed load")
	}
	if modelCalls != 1 {
		t.Fatalf("model loader called %d times, want 1", modelCalls)
	}
}

func TestResources_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "airports.csv"), filepath.Join(dir, "model.yaml"))
	err := r.Load()
	if !errors.Is(err, airports.ErrMissingReferenceData) {
		t.Fatalf("Load() error = %v, want ErrMissingReferenceData", err)
	}
	a, m := r.Paths()
	if a != filepath.Join(dir, "airports.csv") || m != filepath.Join(dir, "model.yaml") {
		t.Errorf("Paths() = %q, %q", a, m)
	}
}

// TestResources_ShippedData loads the data files bundled with the service.
func TestResources_ShippedData(t *testing.T) {
	r := New(filepath.Join("..", "..", "data", "airports.csv"), filepath.Join("..", "..", "data", "model_linear_regression.yaml"))
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	dir, _ := r.Airports()
	if _, err := dir.Resolve("CGK"); err != nil {
		t.Errorf("Resolve(CGK) error = %v", err)
	}
}

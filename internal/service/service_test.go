package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aldikf/airfare-price-service/internal/airports"
	"github.com/aldikf/airfare-price-service/internal/cache"
	"github.com/aldikf/airfare-price-service/internal/features"
	"github.com/aldikf/airfare-price-service/internal/model"
	"github.com/aldikf/airfare-price-service/internal/models"
	"github.com/aldikf/airfare-price-service/internal/observability"
	"github.com/aldikf/airfare-price-service/internal/pipeline"
)

type mockPredictor struct {
	calls      atomic.Int32
	prediction models.PricePrediction
	err        error
	info       model.Info
	gate       chan struct{} // when non-nil, Predict blocks until closed
	started    chan struct{}
	startOnce  sync.Once
}

func (m *mockPredictor) Predict(d models.FlightDescriptor) (models.PricePrediction, error) {
	m.calls.Add(1)
	if m.started != nil {
		m.startOnce.Do(func() { close(m.started) })
	}
	if m.gate != nil {
		<-m.gate
	}
	return m.prediction, m.err
}

func (m *mockPredictor) ModelInfo() model.Info {
	if m.info.Name == "" {
		return model.Info{Name: "mock", Version: "1"}
	}
	return m.info
}

type mockCache struct {
	mu     sync.Mutex
	data   map[string]models.PricePrediction
	getErr error
	setErr error
	sets   int
}

func (m *mockCache) Get(ctx context.Context, key string) (models.PricePrediction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return models.PricePrediction{}, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value models.PricePrediction, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	if m.data == nil {
		m.data = make(map[string]models.PricePrediction)
	}
	m.data[key] = value
	return nil
}

func (m *mockCache) Name() string { return "mock" }

func cgkToDps() models.FlightDescriptor {
	return models.FlightDescriptor{
		Airline:       "Garuda Indonesia",
		TravelDate:    "24/03/2019",
		DepartureTime: "22:20",
		ArrivalTime:   "01:10",
		Duration:      "2h 50m",
		Transit:       "non-stop",
		InfoNote:      "No info",
		Origin:        "CGK",
		Destination:   "DPS",
	}
}

func samplePrediction() models.PricePrediction {
	return models.PricePrediction{
		Estimate:    1500000,
		LowerBound:  1350000,
		UpperBound:  1650000,
		DistanceKm:  983,
		Origin:      airports.Record{Code: "CGK"},
		Destination: airports.Record{Code: "DPS"},
	}
}

// TestPredict_ReadThroughCache verifies a repeated request is served from cache without inference.
func TestPredict_ReadThroughCache(t *testing.T) {
	p := &mockPredictor{prediction: samplePrediction()}
	c := &mockCache{}
	svc := NewPredictionService(p, c, time.Minute, nil)
	ctx := context.Background()

	first, err := svc.Predict(ctx, cgkToDps())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if first.Cached {
		t.Error("first prediction marked cached")
	}
	second, err := svc.Predict(ctx, cgkToDps())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if !second.Cached || second.Estimate != first.Estimate {
		t.Errorf("second Predict() = %+v, want cached copy of %+v", second, first)
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("predictor calls = %d, want 1", n)
	}
}

func TestPredict_NoCache(t *testing.T) {
	p := &mockPredictor{prediction: samplePrediction()}
	svc := NewPredictionService(p, nil, time.Minute, nil)
	for i := 0; i < 3; i++ {
		got, err := svc.Predict(context.Background(), cgkToDps())
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		if got.Cached {
			t.Error("prediction marked cached with caching disabled")
		}
	}
	if n := p.calls.Load(); n != 3 {
		t.Errorf("predictor calls = %d, want 3", n)
	}
}

// TestPredict_CacheFailuresDoNotFailRequest verifies cache errors are logged and ignored.
func TestPredict_CacheFailuresDoNotFailRequest(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &mockPredictor{prediction: samplePrediction()}
	c := &mockCache{getErr: errors.New("dial timeout"), setErr: errors.New("connection refused")}
	svc := NewPredictionService(p, c, time.Minute, zap.New(core))

	got, err := svc.Predict(context.Background(), cgkToDps())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got.Estimate != 1500000 {
		t.Errorf("Estimate = %v", got.Estimate)
	}
	if n := logs.FilterMessage("cache get failed").Len(); n != 1 {
		t.Errorf("cache get warnings = %d, want 1", n)
	}
	if n := logs.FilterMessage("cache set failed").Len(); n != 1 {
		t.Errorf("cache set warnings = %d, want 1", n)
	}
}

func TestPredict_ErrorsAreNotCached(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
	}{
		{"validation", fmt.Errorf("%w: origin and destination must differ", pipeline.ErrValidation), zap.InfoLevel},
		{"unknown airport", fmt.Errorf("origin: %w", airports.ErrUnknownAirport), zap.InfoLevel},
		{"schema mismatch", fmt.Errorf("model predict: %w", features.ErrSchemaMismatch), zap.ErrorLevel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			p := &mockPredictor{err: tc.err}
			c := &mockCache{}
			svc := NewPredictionService(p, c, time.Minute, zap.New(core))

			_, err := svc.Predict(context.Background(), cgkToDps())
			if !errors.Is(err, tc.err) {
				t.Fatalf("Predict() error = %v, want %v", err, tc.err)
			}
			if c.sets != 0 {
				t.Errorf("cache sets = %d, want 0", c.sets)
			}
			entries := logs.All()
			if len(entries) != 1 || entries[0].Level != tc.wantLevel {
				t.Fatalf("logs = %+v, want one %s entry", entries, tc.wantLevel)
			}
		})
	}
}

// TestPredict_UsesContextLogger verifies request-scoped fields reach service logs.
func TestPredict_UsesContextLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reqLogger := zap.New(core).With(zap.String("correlation_id", "req-42"))
	ctx := observability.WithLogger(context.Background(), reqLogger)
	svc := NewPredictionService(&mockPredictor{prediction: samplePrediction()}, nil, time.Minute, zap.NewNop())

	if _, err := svc.Predict(ctx, cgkToDps()); err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	served := logs.FilterMessage("prediction served").All()
	if len(served) != 1 {
		t.Fatalf("prediction served logs = %d, want 1", len(served))
	}
	fields := served[0].ContextMap()
	if fields["correlation_id"] != "req-42" || fields["origin"] != "CGK" {
		t.Errorf("log fields = %v", fields)
	}
}

// TestPredict_CoalescesConcurrentMisses verifies identical in-flight requests share one inference.
func TestPredict_CoalescesConcurrentMisses(t *testing.T) {
	p := &mockPredictor{
		prediction: samplePrediction(),
		gate:       make(chan struct{}),
		started:    make(chan struct{}),
	}
	svc := NewPredictionService(p, nil, time.Minute, nil)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Predict(context.Background(), cgkToDps())
			errs <- err
		}()
	}
	<-p.started
	time.Sleep(50 * time.Millisecond)
	close(p.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
	}
	if calls := p.calls.Load(); calls >= n {
		t.Errorf("predictor calls = %d, want fewer than %d", calls, n)
	}
}

// TestPredict_ExpiredContext verifies an expired request skips inference.
func TestPredict_ExpiredContext(t *testing.T) {
	p := &mockPredictor{prediction: samplePrediction()}
	svc := NewPredictionService(p, nil, time.Minute, nil)
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	_, err := svc.Predict(ctx, cgkToDps())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Predict() error = %v, want context.DeadlineExceeded", err)
	}
	if n := p.calls.Load(); n != 0 {
		t.Errorf("predictor calls = %d, want 0", n)
	}
}

// TestPredict_DeadlineDuringInference verifies the caller is released at its
// deadline and the inference still lands in the cache.
func TestPredict_DeadlineDuringInference(t *testing.T) {
	p := &mockPredictor{
		prediction: samplePrediction(),
		gate:       make(chan struct{}),
		started:    make(chan struct{}),
	}
	c := &mockCache{}
	svc := NewPredictionService(p, c, time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := svc.Predict(ctx, cgkToDps())
		errc <- err
	}()
	<-p.started

	select {
	case err := <-errc:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Predict() error = %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Predict() did not return at its deadline")
	}

	close(p.gate)
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		sets := c.sets
		c.mu.Unlock()
		if sets == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache sets = %d, want 1", sets)
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, err := svc.Predict(context.Background(), cgkToDps())
	if err != nil || !got.Cached {
		t.Errorf("Predict() after inference = %+v, %v; want cached", got, err)
	}
}

func TestCacheKey(t *testing.T) {
	info := model.Info{Name: "linear_regression", Version: "1"}
	base := CacheKey(info, cgkToDps())

	if CacheKey(info, cgkToDps()) != base {
		t.Error("CacheKey() not deterministic")
	}
	if CacheKey(model.Info{Name: "linear_regression", Version: "2"}, cgkToDps()) == base {
		t.Error("CacheKey() ignores model version")
	}
	other := cgkToDps()
	other.Transit = "1 stop"
	if CacheKey(info, other) == base {
		t.Error("CacheKey() ignores transit")
	}
	swapped := cgkToDps()
	swapped.Origin, swapped.Destination = swapped.Destination, swapped.Origin
	if CacheKey(info, swapped) == base {
		t.Error("CacheKey() ignores direction")
	}
}

// TestPredict_TrimsBeforeKeying verifies whitespace variants share a cache entry.
func TestPredict_TrimsBeforeKeying(t *testing.T) {
	p := &mockPredictor{prediction: samplePrediction()}
	svc := NewPredictionService(p, cache.NewInMemoryCache(0), time.Minute, nil)

	padded := cgkToDps()
	padded.Airline = "  Garuda Indonesia "
	padded.Origin = "CGK\t"
	if _, err := svc.Predict(context.Background(), cgkToDps()); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Predict(context.Background(), padded)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Cached {
		t.Error("padded descriptor missed the cache")
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, observability.OutcomeSuccess},
		{fmt.Errorf("x: %w", pipeline.ErrValidation), observability.OutcomeValidation},
		{fmt.Errorf("destination: %w", airports.ErrUnknownAirport), observability.OutcomeUnknownAirport},
		{errors.New("boom"), observability.OutcomeError},
		{fmt.Errorf("predict: %w", context.DeadlineExceeded), observability.OutcomeTimeout},
		{context.Canceled, observability.OutcomeTimeout},
	}
	for _, tc := range tests {
		if got := Outcome(tc.err); got != tc.want {
			t.Errorf("Outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestModelInfo(t *testing.T) {
	svc := NewPredictionService(&mockPredictor{info: model.Info{Name: "lr", Version: "9"}}, nil, 0, nil)
	if got := svc.ModelInfo(); got.Name != "lr" || got.Version != "9" {
		t.Errorf("ModelInfo() = %+v", got)
	}
}

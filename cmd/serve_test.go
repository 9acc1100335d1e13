package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/suppli-hq/suppli-cli/internal/generate"
	"github.com/suppli-hq/suppli-cli/internal/learning"
	"github.com/suppli-hq/suppli-cli/internal/model"
)

// apiFixture backs the HTTP handlers with canned data.
type apiFixture struct {
	vendors []model.Vendor
	links   []model.VendorProductLink
	biases  map[string]float64
	failAll bool
}

func (f *apiFixture) FetchActiveVendors(_ context.Context, businessID string, _ []string) ([]model.Vendor, error) {
	return f.vendors, nil
}

func (f *apiFixture) FetchVendorProductLinks(_ context.Context, _ string, _ []string) ([]model.VendorProductLink, error) {
	return f.links, nil
}

func (f *apiFixture) FetchSalesStats(_ context.Context, _ string, _ []string, _, _ time.Time) (map[string]model.SalesData, error) {
	if f.failAll {
		return nil, assert.AnError
	}
	return map[string]model.SalesData{}, nil
}

func (f *apiFixture) FetchLatestApprovedOrders(_ context.Context, _ string, _ []string) (map[string]model.PreviousOrder, error) {
	return map[string]model.PreviousOrder{}, nil
}

func (f *apiFixture) FetchActivePromotions(_ context.Context, _ string, _ []string, _, _ time.Time) (map[string]model.Promotion, error) {
	return map[string]model.Promotion{}, nil
}

func (f *apiFixture) FetchLearningBiases(_ context.Context, _ string, _ []string) (map[string]float64, error) {
	return f.biases, nil
}

func (f *apiFixture) GetLearningBias(_ context.Context, _, productID string) (float64, bool, error) {
	v, ok := f.biases[productID]
	return v, ok, nil
}

func (f *apiFixture) UpsertLearningBias(_ context.Context, _, productID string, value float64) error {
	f.biases[productID] = value
	return nil
}

func newTestAPI(fixture *apiFixture) http.Handler {
	api := &apiServer{
		generator: generate.NewGenerator(fixture),
		tracker:   learning.NewTracker(fixture),
		limiter:   rate.NewLimiter(rate.Inf, 1),
	}
	return api.routes()
}

func populatedFixture() *apiFixture {
	return &apiFixture{
		vendors: []model.Vendor{{ID: "v1", BusinessID: "b1", Name: "Fresh Farms"}},
		links: []model.VendorProductLink{
			{VendorID: "v1", VendorName: "Fresh Farms", ProductID: "p1", ProductName: "Tomatoes", UnitType: model.UnitTypeCase},
		},
		biases: map[string]float64{"p1": 1.05},
	}
}

func TestServeHealth(t *testing.T) {
	h := newTestAPI(populatedFixture())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServeGenerate(t *testing.T) {
	h := newTestAPI(populatedFixture())

	body := `{"business_id":"b1","period_start":"2026-08-21","period_end":"2026-08-28","mode":"guided"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/generate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var result model.OrderGenerationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.VendorOrders, 1)
	assert.Equal(t, "Fresh Farms", result.VendorOrders[0].VendorName)
	assert.Equal(t, 1, result.Summary.TotalProducts)
}

func TestServeGenerate_NoVendors(t *testing.T) {
	h := newTestAPI(&apiFixture{biases: map[string]float64{}})

	body := `{"business_id":"b1","period_start":"2026-08-21","period_end":"2026-08-28"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/generate", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no active vendors")
}

func TestServeGenerate_FetchFailure(t *testing.T) {
	fixture := populatedFixture()
	fixture.failAll = true
	h := newTestAPI(fixture)

	body := `{"business_id":"b1","period_start":"2026-08-21","period_end":"2026-08-28"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/generate", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "sales stats")
}

func TestServeGenerate_InvalidBody(t *testing.T) {
	h := newTestAPI(populatedFixture())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/generate", strings.NewReader("not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeGenerate_MissingBusiness(t *testing.T) {
	h := newTestAPI(populatedFixture())

	body := `{"period_start":"2026-08-21","period_end":"2026-08-28"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/generate", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "business_id is required")
}

func TestServeGenerate_BadMode(t *testing.T) {
	h := newTestAPI(populatedFixture())

	body := `{"business_id":"b1","period_start":"2026-08-21","period_end":"2026-08-28","mode":"turbo"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/generate", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "mode must be")
}

func TestServeGenerate_BadDate(t *testing.T) {
	h := newTestAPI(populatedFixture())

	body := `{"business_id":"b1","period_start":"August 21","period_end":"2026-08-28"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/generate", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "period_start")
}

func TestServeEdit(t *testing.T) {
	h := newTestAPI(populatedFixture())

	body := `{"business_id":"b1","product_id":"p1","recommended_quantity":10,"final_quantity":12}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/lines/edit", strings.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")
}

func TestServeEdit_MissingFields(t *testing.T) {
	h := newTestAPI(populatedFixture())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/lines/edit", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeBiases(t *testing.T) {
	h := newTestAPI(populatedFixture())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/learning/biases?business=b1&products=p1,p2", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var biases map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &biases))
	assert.Equal(t, map[string]float64{"p1": 1.05}, biases)
}

func TestServeBiases_MissingBusiness(t *testing.T) {
	h := newTestAPI(populatedFixture())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/learning/biases", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGracefulShutdownDrainsInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(started)
			<-release
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, "drained")
		}),
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)

	ctx, cancel := context.WithCancel(context.Background())
	shutdownDone := make(chan struct{})
	go func() {
		gracefulShutdown(ctx, srv)
		close(shutdownDone)
	}()

	type result struct {
		body string
		err  error
	}
	results := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			results <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		results <- result{body: string(body)}
	}()

	// Trigger shutdown while the request is in flight, then let the
	// handler finish.
	<-started
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case res := <-results:
		require.NoError(t, res.err, "in-flight request must complete during shutdown")
		assert.Equal(t, "drained", res.body)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight request never completed")
	}

	select {
	case <-shutdownDone:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown never returned")
	}
}

func TestServeRateLimit(t *testing.T) {
	api := &apiServer{
		generator: generate.NewGenerator(populatedFixture()),
		tracker:   learning.NewTracker(populatedFixture()),
		limiter:   rate.NewLimiter(1, 1),
	}
	h := api.routes()

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

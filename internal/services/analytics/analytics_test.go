package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"Farenheit/internal/domain/models"
	"Farenheit/pkg/config"
)

var icnNrt = models.Route{ID: 1, Origin: "ICN", Destination: "NRT", IsActive: true}

func newBase(t *testing.T, h http.Handler) *HTTPServiceBase {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := &config.Config{}
	cfg.Analytics.ModelServiceURL = srv.URL
	cfg.Analytics.Timeout = 2 * time.Second
	cfg.Analytics.Retries = 2
	cfg.Analytics.AvailabilityTTL = time.Minute
	b := NewHTTPServiceBase(cfg)
	b.backoff = time.Millisecond
	return b
}

func TestAvailabilityIsCached(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/models/ICN-NRT", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(availabilityResp{Route: "ICN-NRT", Seasonal: true, Classifier: false})
	})
	b := newBase(t, mux)
	seasonal := NewHTTPSeasonalModel(b)
	clf := NewHTTPDirectionClassifier(b)

	ctx := context.Background()
	if !seasonal.Available(ctx, icnNrt) {
		t.Fatalf("seasonal should be available")
	}
	if clf.Available(ctx, icnNrt) {
		t.Fatalf("classifier should not be available")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 availability call, got %d", got)
	}
}

func TestAvailabilityUnconfigured(t *testing.T) {
	b := NewHTTPServiceBase(&config.Config{})
	if NewHTTPSeasonalModel(b).Available(context.Background(), icnNrt) {
		t.Fatalf("unconfigured service must be unavailable")
	}
}

func TestSeasonalForecastParsesSeries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/seasonal/forecast", func(w http.ResponseWriter, r *http.Request) {
		var req seasonalReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Horizon != 3 || len(req.History) != 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"forecast":[
			{"ds":"2026-03-01","yhat":300000,"yhat_lower":280000,"yhat_upper":320000},
			{"ds":"2026-03-02","yhat":305000,"yhat_lower":285000,"yhat_upper":325000},
			{"ds":"2026-03-03","yhat":310000,"yhat_lower":290000,"yhat_upper":330000}
		],"direction":"UP"}`))
	})
	b := newBase(t, mux)
	history := []models.PricePoint{
		{At: time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), Price: 295000},
		{At: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), Price: 298000},
	}
	sf, err := NewHTTPSeasonalModel(b).Forecast(context.Background(), icnNrt, history, 3)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(sf.Series) != 3 || sf.Direction != models.DirectionUp {
		t.Fatalf("unexpected forecast %+v", sf)
	}
	if sf.Series[1].Predicted != 305000 || sf.Series[1].Low != 285000 {
		t.Fatalf("unexpected mid point %+v", sf.Series[1])
	}
}

func TestClassifierRetriesTransientErrors(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/classifier/predict", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		var req classifierReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := req.Features["days_until_departure"]; !ok {
			http.Error(w, "missing features", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"will_drop":true,"confidence":1.4}`))
	})
	b := newBase(t, mux)
	rows := []models.FeatureRow{{Price: 300000, DaysUntilDeparture: 20}}
	dp, err := NewHTTPDirectionClassifier(b).Predict(context.Background(), icnNrt, rows)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !dp.WillDrop || dp.Confidence != 1 {
		t.Fatalf("unexpected prediction %+v", dp)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestClassifierNeedsFeatures(t *testing.T) {
	b := newBase(t, http.NewServeMux())
	if _, err := NewHTTPDirectionClassifier(b).Predict(context.Background(), icnNrt, nil); err == nil {
		t.Fatalf("expected error for empty features")
	}
}

func TestClassifierDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/classifier/predict", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown route", http.StatusBadRequest)
	})
	b := newBase(t, mux)
	rows := []models.FeatureRow{{Price: 300000, DaysUntilDeparture: 20}}
	if _, err := NewHTTPDirectionClassifier(b).Predict(context.Background(), icnNrt, rows); err == nil {
		t.Fatalf("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

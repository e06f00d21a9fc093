package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"Farenheit/internal/domain/models"
	"Farenheit/internal/repository"
	"Farenheit/internal/services/forecast"
	"Farenheit/internal/usecase"
	xhttp "Farenheit/pkg/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type testEnv struct {
	e      *echo.Echo
	dep    string
	routes *repository.MemoryRouteStore
	alerts *repository.MemoryAlertStore
}

func newTestServer(t *testing.T) (*echo.Echo, string) {
	t.Helper()
	env := newTestEnv(t)
	return env.e, env.dep
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	routes := repository.NewMemoryRouteStore()
	route := routes.Add(models.Route{Origin: "ICN", Destination: "NRT", IsActive: true})

	prices := repository.NewMemoryPriceStore()
	departure := models.DateOnly(time.Now()).AddDate(0, 0, 40)
	var obs []models.PriceObservation
	for i := 1; i <= 10; i++ {
		obs = append(obs, models.PriceObservation{
			ObservedAt:    time.Now().AddDate(0, 0, -i),
			RouteID:       route.ID,
			Airline:       "KE",
			DepartureDate: departure,
			CabinClass:    models.CabinEconomy,
			Price:         decimal.NewFromInt(int64(300000 + i*1000)),
			Currency:      "KRW",
			Source:        "test",
		})
	}
	if _, err := prices.StoreBatch(t.Context(), obs); err != nil {
		t.Fatalf("seed prices: %v", err)
	}

	alerts := repository.NewMemoryAlertStore()
	queries := usecase.NewFlightQueries(routes, prices, repository.NewMemoryPredictionStore(), nil, forecast.NewStatisticalOnly(14))
	e := echo.New()
	NewFlightsEchoHandler(nil, queries, usecase.NewAlertService(routes, alerts)).RegisterRoutes(e)
	return &testEnv{e: e, dep: departure.Format("2006-01-02"), routes: routes, alerts: alerts}
}

func get(t *testing.T, e *echo.Echo, target string) (int, envelope) {
	t.Helper()
	return do(t, e, http.MethodGet, target, "")
}

// do serves one request; a JSON body is sent when body is non-empty.
func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() == 0 {
		return rec.Code, env
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, target, err, rec.Body.String())
	}
	return rec.Code, env
}

func TestRecommendationWithoutPredictionIsHold(t *testing.T) {
	e, dep := newTestServer(t)
	code, env := get(t, e, "/api/recommendations?route_id=1&departure_date="+dep)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var rec models.Recommendation
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("decode recommendation: %v", err)
	}
	if rec.Signal != models.SignalHold || rec.CabinClass != models.CabinEconomy || rec.Route != "ICN-NRT" {
		t.Fatalf("unexpected recommendation %+v", rec)
	}
}

func TestRequestValidation(t *testing.T) {
	e, dep := newTestServer(t)
	cases := []struct {
		target string
		field  string
	}{
		{"/api/recommendations?departure_date=" + dep, "route_id"},
		{"/api/recommendations?route_id=1&departure_date=01-12-2026", "departure_date"},
		{"/api/recommendations?route_id=1&departure_date=" + dep + "&cabin=COACH", "cabin"},
		{"/api/forecast?route_id=1&departure_date=" + dep + "&horizon=90", "horizon"},
		{"/api/prices/history?route_id=1&departure_date=" + dep + "&airline=KOR", "airline"},
		{"/api/forecast?origin=ICN&departure_date=" + dep, "destination"},
		{"/api/recommendations?origin=IC1&destination=NRT&departure_date=" + dep, "origin"},
	}
	for _, tc := range cases {
		code, env := get(t, e, tc.target)
		if code != http.StatusBadRequest || env.Status != http.StatusBadRequest {
			t.Fatalf("%s: status = %d/%d, want 400", tc.target, code, env.Status)
		}
		var errs []xhttp.ValidationError
		if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) == 0 || errs[0].Field != tc.field {
			t.Fatalf("%s: unexpected errors %s (%v)", tc.target, env.Data, err)
		}
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	e, dep := newTestServer(t)
	code, env := get(t, e, "/api/recommendations?route_id=99&departure_date="+dep)
	if code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
	var errs []xhttp.AppError
	if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) != 1 || errs[0].Code != "ERR_NOT_FOUND" {
		t.Fatalf("unexpected error body %s (%v)", env.Data, err)
	}
}

func TestForecastEndpoint(t *testing.T) {
	e, dep := newTestServer(t)
	code, env := get(t, e, "/api/forecast?route_id=1&departure_date="+dep+"&horizon=7")
	if code != http.StatusOK {
		t.Fatalf("status = %d body=%s", code, env.Data)
	}
	var f models.Forecast
	if err := json.Unmarshal(env.Data, &f); err != nil {
		t.Fatalf("decode forecast: %v", err)
	}
	if f.ModelVersion != forecast.StatisticalVersion || f.PredictedPrice <= 0 {
		t.Fatalf("unexpected forecast %+v", f)
	}

	other := models.DateOnly(time.Now()).AddDate(0, 0, 70).Format("2006-01-02")
	code, _ = get(t, e, "/api/forecast?route_id=1&departure_date="+other)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("empty history status = %d, want 422", code)
	}
}

func TestPriceHistoryEndpoint(t *testing.T) {
	e, dep := newTestServer(t)
	code, env := get(t, e, "/api/prices/history?route_id=1&departure_date="+dep+"&days=5")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var res usecase.HistoryResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if res.Count != 4 || res.Stats.Count != 4 {
		t.Fatalf("expected 4 observations in a 5 day window, got %d", res.Count)
	}
	if !res.Stats.Min.Equal(decimal.NewFromInt(301000)) {
		t.Fatalf("min = %s", res.Stats.Min)
	}
}

func TestPredictionsEndpointListsRows(t *testing.T) {
	e, _ := newTestServer(t)
	code, env := get(t, e, "/api/predictions?route_id=1")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var list xhttp.ListDataResponse
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 0 {
		t.Fatalf("total = %d", list.Total)
	}
}

func TestRecommendationCreatesRouteOnFirstUse(t *testing.T) {
	env := newTestEnv(t)
	target := "/api/recommendations?origin=icn&destination=fuk&departure_date=" + env.dep
	for i := 0; i < 2; i++ {
		code, body := get(t, env.e, target)
		if code != http.StatusOK {
			t.Fatalf("status = %d body=%s", code, body.Data)
		}
		var rec models.Recommendation
		if err := json.Unmarshal(body.Data, &rec); err != nil {
			t.Fatalf("decode recommendation: %v", err)
		}
		if rec.Signal != models.SignalHold || rec.Route != "ICN-FUK" {
			t.Fatalf("unexpected recommendation %+v", rec)
		}
	}

	routes, err := env.routes.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list routes: %v", err)
	}
	if len(routes) != 2 || routes[1].Code() != "ICN-FUK" || !routes[1].IsActive {
		t.Fatalf("expected one new active route, got %+v", routes)
	}
}

func TestForecastByCodesUsesExistingRoute(t *testing.T) {
	env := newTestEnv(t)
	code, body := get(t, env.e, "/api/forecast?origin=ICN&destination=NRT&horizon=7&departure_date="+env.dep)
	if code != http.StatusOK {
		t.Fatalf("status = %d body=%s", code, body.Data)
	}
	routes, _ := env.routes.ListActive(context.Background())
	if len(routes) != 1 {
		t.Fatalf("existing route should be reused, got %+v", routes)
	}

	code, _ = get(t, env.e, "/api/forecast?origin=ICN&destination=icn&departure_date="+env.dep)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("same origin and destination status = %d, want 422", code)
	}
}

func TestAlertLifecycle(t *testing.T) {
	env := newTestEnv(t)
	body := `{"origin":"ICN","destination":"CTS","target_price":250000,"departure_date":"` + env.dep + `"}`
	code, res := do(t, env.e, http.MethodPost, "/api/alerts", body)
	if code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", code, res.Data)
	}
	var view usecase.AlertView
	if err := json.Unmarshal(res.Data, &view); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if view.ID == 0 || view.Route != "ICN-CTS" || view.CabinClass != models.CabinEconomy || !view.TargetPrice.Equal(decimal.NewFromInt(250000)) {
		t.Fatalf("unexpected alert %+v", view)
	}

	pending, err := env.alerts.ListUntriggered(context.Background())
	if err != nil || len(pending) != 1 || pending[0].DepartureDate == nil {
		t.Fatalf("alert not stored for the alert stage: %+v (%v)", pending, err)
	}

	target := "/api/alerts/" + strconv.FormatInt(view.ID, 10)
	if code, _ := do(t, env.e, http.MethodDelete, target, ""); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	if code, _ := do(t, env.e, http.MethodDelete, target, ""); code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", code)
	}
}

func TestCreateAlertValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		body  string
		field string
	}{
		{`{"target_price":1000}`, "route_id"},
		{`{"route_id":1,"target_price":0}`, "target_price"},
		{`{"route_id":1,"target_price":1000,"cabin_class":"COACH"}`, "cabin_class"},
		{`{"route_id":1,"target_price":1000,"departure_date":"2026/01/01"}`, "departure_date"},
	}
	for _, tc := range cases {
		code, res := do(t, env.e, http.MethodPost, "/api/alerts", tc.body)
		if code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.body, code)
		}
		var errs []xhttp.ValidationError
		if err := json.Unmarshal(res.Data, &errs); err != nil || len(errs) == 0 || errs[0].Field != tc.field {
			t.Fatalf("%s: unexpected errors %s (%v)", tc.body, res.Data, err)
		}
	}
}

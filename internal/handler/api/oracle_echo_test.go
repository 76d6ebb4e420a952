package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PriceMesh/internal/domain/models"
	"PriceMesh/internal/oracle"
	"PriceMesh/internal/usecase"
	"PriceMesh/pkg/config"
	xlogger "PriceMesh/pkg/logger"

	"github.com/labstack/echo/v4"
)

type noopMetrics struct{}

func (noopMetrics) RecordSubmissionAccepted(string, string) {}
func (noopMetrics) RecordSubmissionRejected(string, string) {}
func (noopMetrics) RecordMessageSent(string, string)        {}
func (noopMetrics) RecordError(string)                      {}
func (noopMetrics) RecordVolatilityIndex(string, float64)   {}
func (noopMetrics) RecordValidSources(string, int)          {}
func (noopMetrics) RecordLatency(string, float64)           {}

const testNow = int64(1_700_000_000)

func newTestHandler(t *testing.T) (*echo.Echo, *oracle.Engine) {
	t.Helper()

	eng := oracle.NewEngine(models.OracleParams{
		ValidityPeriod:     300,
		MaxPriceDeviation:  1,
		MinRequiredSources: 2,
		MinVolumeThreshold: 10_000,
		SlippageTolerance:  50,
	}, oracle.WithClock(func() time.Time { return time.Unix(testNow, 0) }))
	eng.SetAuthorizedProvider("rep-a", true)
	eng.SetAuthorizedProvider("rep-b", true)

	log := xlogger.NewNop()
	intake := usecase.NewSubmissionIntake(eng, nil, noopMetrics{}, "test", log)

	cfg := &config.Config{}
	cfg.Oracle.ReporterKeys = map[string]string{"key-a": "rep-a", "key-b": "rep-b"}
	cfg.Oracle.AdminKeys = []string{"admin-key"}
	cfg.Oracle.SubmitRPS = 100

	h := NewOracleEchoHandler(log, intake, nil, nil, cfg)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, eng
}

func doJSON(e *echo.Echo, method, path, apiKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func dataField(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Status int             `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(resp.Data, &m); err != nil {
		t.Fatalf("decode data: %v (%s)", err, resp.Data)
	}
	return m
}

func TestSubmitRequiresReporterKey(t *testing.T) {
	e, _ := newTestHandler(t)

	rec := doJSON(e, http.MethodPost, "/api/submissions", "",
		`{"asset":"BTC","price":1,"volume":20000}`)
	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.Status)
	}
}

func TestSubmitAndWeightedPrice(t *testing.T) {
	e, _ := newTestHandler(t)

	body := `{"asset":"BTC","price":50000000000,"volume":20000,"timestamp":1700000000}`
	rec := doJSON(e, http.MethodPost, "/api/submissions", "key-a", body)
	if got := dataField(t, rec); got["accepted"] != true {
		t.Fatalf("submission not accepted: %s", rec.Body.String())
	}

	body = `{"asset":"BTC","price":50100000000,"volume":20000,"timestamp":1700000000}`
	rec = doJSON(e, http.MethodPost, "/api/submissions", "key-b", body)
	if got := dataField(t, rec); got["accepted"] != true {
		t.Fatalf("submission not accepted: %s", rec.Body.String())
	}

	rec = doJSON(e, http.MethodGet, "/api/prices/BTC/weighted", "", "")
	got := dataField(t, rec)
	if got["price"] != float64(50_050_000000) {
		t.Fatalf("weighted price = %v, want 50050000000", got["price"])
	}
	if got["sources"] != float64(2) {
		t.Fatalf("sources = %v, want 2", got["sources"])
	}
}

func TestWeightedPriceInsufficientSources(t *testing.T) {
	e, _ := newTestHandler(t)

	body := `{"asset":"ETH","price":3000000000,"volume":20000,"timestamp":1700000000}`
	doJSON(e, http.MethodPost, "/api/submissions", "key-a", body)

	rec := doJSON(e, http.MethodGet, "/api/prices/ETH/weighted", "", "")
	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%s)", resp.Status, rec.Body.String())
	}
}

func TestSubmitRejectedBelowMinVolume(t *testing.T) {
	e, _ := newTestHandler(t)

	body := `{"asset":"BTC","price":50000000000,"volume":1,"timestamp":1700000000}`
	rec := doJSON(e, http.MethodPost, "/api/submissions", "key-a", body)
	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (%s)", resp.Status, rec.Body.String())
	}
}

func TestSlippageCheck(t *testing.T) {
	e, _ := newTestHandler(t)

	body := `{"price":1004000000,"expected_price":1000000000}`
	rec := doJSON(e, http.MethodPost, "/api/slippage/check", "", body)
	if got := dataField(t, rec); got["within"] != true {
		t.Fatalf("within = %v, want true (%s)", got["within"], rec.Body.String())
	}

	body = `{"price":1006000000,"expected_price":1000000000}`
	rec = doJSON(e, http.MethodPost, "/api/slippage/check", "", body)
	if got := dataField(t, rec); got["within"] != false {
		t.Fatalf("within = %v, want false (%s)", got["within"], rec.Body.String())
	}
}

func TestAdminEndpointsGated(t *testing.T) {
	e, eng := newTestHandler(t)

	rec := doJSON(e, http.MethodPost, "/api/admin/providers", "key-a",
		`{"reporter":"rep-c","authorized":true}`)
	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != http.StatusUnauthorized {
		t.Fatalf("non-admin status = %d, want 401", resp.Status)
	}

	rec = doJSON(e, http.MethodPost, "/api/admin/providers", "admin-key",
		`{"reporter":"rep-c","authorized":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if !eng.IsAuthorized("rep-c") {
		t.Fatalf("rep-c not authorized after admin call")
	}
}

func TestAdminConfigRoundTrip(t *testing.T) {
	e, eng := newTestHandler(t)

	body := `{"validity_period":600,"max_price_deviation":2,"min_required_sources":3,"min_volume_threshold":500,"slippage_tolerance":100}`
	rec := doJSON(e, http.MethodPut, "/api/admin/config", "admin-key", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("config update status = %d (%s)", rec.Code, rec.Body.String())
	}
	if p := eng.Params(); p.ValidityPeriod != 600 || p.MinRequiredSources != 3 {
		t.Fatalf("params not applied: %+v", p)
	}

	rec = doJSON(e, http.MethodGet, "/api/admin/config", "admin-key", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("config get status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e, _ := newTestHandler(t)

	rec := doJSON(e, http.MethodGet, "/health", "", "")
	if got := dataField(t, rec); got["status"] != "ok" {
		t.Fatalf("health = %v", got)
	}
}

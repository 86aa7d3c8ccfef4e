package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"tradersentiment/config"
	"tradersentiment/logger"
	"tradersentiment/models"
	"tradersentiment/reader"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// fixture writes three accounts trading on two days and a sentiment index
// with one fearful and one extremely greedy day.
func fixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("Account,Timestamp,Closed PnL,Size USD,Side,Leverage\n")
	days := []int64{1709294400000, 1709380800000}
	for i, acct := range []string{"0xA", "0xB", "0xC"} {
		for d, ts := range days {
			fmt.Fprintf(&b, "%s,%d,%d,%d,BUY,%d\n", acct, ts, (i+1)*(d*2-1)*10, (i+1)*100, i+1)
			fmt.Fprintf(&b, "%s,%d,%d,%d,SELL,%d\n", acct, ts+60000, i+d, 50, i+2)
		}
	}
	cfg := config.Default()
	cfg.Data.TradesPath = writeFile(t, dir, "trades.csv", b.String())
	cfg.Data.SentimentPath = writeFile(t, dir, "fg.csv", "timestamp,value,classification,date\n1,20,Fear,2024-03-01\n2,80,Extreme Greed,2024-03-02\n")
	cfg.Live.Enabled = false
	return &cfg
}

type fakeFetcher struct {
	symbol string
	limit  int
}

func (f *fakeFetcher) Fetch(_ context.Context, symbol string, limit int) []models.LiveTrade {
	f.symbol, f.limit = symbol, limit
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.LiveTrade{
		{Time: ts, Side: "Buy", Price: 100, Size: 1, VolumeUSD: 100, Account: "Live_Market_User", AvgLeverage: 1, Date: "2024-03-01"},
		{Time: ts.Add(time.Second), Side: "Sell", Price: 101, Size: 2, VolumeUSD: 202, Account: "Live_Market_User", AvgLeverage: 1, Date: "2024-03-01"},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, fetcher LiveFetcher) (*Server, *gin.Engine) {
	t.Helper()
	srv, err := NewServer(cfg, logger.Logger(), reader.NewOpener(config.S3Config{}), fetcher)
	if err != nil || srv == nil {
		t.Fatalf("NewServer: srv=%v err=%v", srv, err)
	}
	t.Cleanup(srv.cleanup)
	router, err := srv.buildRouter("test")
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	return srv, router
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, target, nil))
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(res.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", res.Body.String(), err)
	}
}

func TestIndexAndHealth(t *testing.T) {
	_, router := newTestRouter(t, fixture(t), nil)

	res := get(t, router, "/")
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "extreme greed") {
		t.Fatalf("index: %d %s", res.Code, res.Body.String())
	}
	if res.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing request id header")
	}
	if res := get(t, router, "/healthz"); res.Code != http.StatusOK {
		t.Fatalf("healthz: %d", res.Code)
	}
}

func TestPanelEndpoint(t *testing.T) {
	srv, router := newTestRouter(t, fixture(t), nil)

	var body struct {
		RunID   string                   `json:"run_id"`
		Columns []string                 `json:"columns"`
		Total   int                      `json:"total"`
		Rows    []map[string]interface{} `json:"rows"`
	}
	res := get(t, router, "/api/panel")
	if res.Code != http.StatusOK {
		t.Fatalf("panel: %d %s", res.Code, res.Body.String())
	}
	decode(t, res, &body)
	if body.Total != 6 || len(body.Rows) != 6 || body.RunID == "" {
		t.Fatalf("unexpected panel body: %+v", body)
	}
	if body.Columns[len(body.Columns)-1] != "sentiment_score" {
		t.Errorf("columns = %v", body.Columns)
	}

	tests := []struct {
		query string
		rows  int
	}{
		{"?classification=fear", 3},
		{"?classification=Fear,extreme%20greed", 6},
		{"?classification=bogus", 0},
		{"?limit=2", 2},
	}
	for _, tt := range tests {
		res := get(t, router, "/api/panel"+tt.query)
		if res.Code != http.StatusOK {
			t.Fatalf("%s: %d", tt.query, res.Code)
		}
		decode(t, res, &body)
		if len(body.Rows) != tt.rows {
			t.Errorf("%s: got %d rows, want %d", tt.query, len(body.Rows), tt.rows)
		}
	}

	if srv.panels.builds.Load() != 1 {
		t.Errorf("panel built %d times, want 1", srv.panels.builds.Load())
	}
	if res := get(t, router, "/api/panel?limit=x"); res.Code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", res.Code)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	_, router := newTestRouter(t, fixture(t), nil)

	var kpis struct {
		TotalTrades int      `json:"total_trades"`
		AvgLeverage *float64 `json:"avg_leverage"`
	}
	decode(t, get(t, router, "/api/kpis"), &kpis)
	if kpis.TotalTrades != 12 || kpis.AvgLeverage == nil {
		t.Errorf("kpis = %+v", kpis)
	}
	decode(t, get(t, router, "/api/kpis?classification=fear"), &kpis)
	if kpis.TotalTrades != 6 {
		t.Errorf("fear kpis = %+v", kpis)
	}

	var clusters struct {
		Profiles []models.TraderProfile `json:"profiles"`
	}
	res := get(t, router, "/api/clusters?k=3")
	if res.Code != http.StatusOK {
		t.Fatalf("clusters: %d %s", res.Code, res.Body.String())
	}
	decode(t, res, &clusters)
	if len(clusters.Profiles) != 3 {
		t.Fatalf("got %d profiles", len(clusters.Profiles))
	}
	for _, p := range clusters.Profiles {
		if p.Cluster < 0 || p.Cluster > 2 {
			t.Errorf("cluster %d out of range", p.Cluster)
		}
	}

	var risk struct {
		Traders []map[string]interface{} `json:"traders"`
	}
	decode(t, get(t, router, "/api/risk?top=2"), &risk)
	if len(risk.Traders) != 2 {
		t.Errorf("risk rows = %d", len(risk.Traders))
	}

	if res := get(t, router, "/api/correlation"); res.Code != http.StatusOK {
		t.Errorf("correlation: %d", res.Code)
	}
	if res := get(t, router, "/api/sentiment/distribution"); res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"extreme greed"`) {
		t.Errorf("distribution: %d %s", res.Code, res.Body.String())
	}
	if res := get(t, router, "/api/status"); res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"records":6`) {
		t.Errorf("status: %d %s", res.Code, res.Body.String())
	}
}

func TestAnalyticsErrorMapping(t *testing.T) {
	_, router := newTestRouter(t, fixture(t), nil)

	tests := []struct {
		target string
		code   int
	}{
		{"/api/clusters?k=4", http.StatusUnprocessableEntity},
		{"/api/clusters?k=abc", http.StatusBadRequest},
		{"/api/models/pnl", http.StatusUnprocessableEntity},
		{"/api/models/win", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		res := get(t, router, tt.target)
		if res.Code != tt.code {
			t.Errorf("%s: got %d, want %d (%s)", tt.target, res.Code, tt.code, res.Body.String())
		}
		var body map[string]string
		decode(t, res, &body)
		if body["error"] == "" {
			t.Errorf("%s: missing error message", tt.target)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	cfg := fixture(t)
	cfg.Data.SentimentPath = writeFile(t, t.TempDir(), "bad.csv", "date,value\n2024-03-01,20\n")
	_, router := newTestRouter(t, cfg, nil)
	if res := get(t, router, "/api/panel"); res.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing classification: %d %s", res.Code, res.Body.String())
	}

	cfg = fixture(t)
	cfg.Data.TradesPath = filepath.Join(t.TempDir(), "missing.csv")
	_, router = newTestRouter(t, cfg, nil)
	if res := get(t, router, "/api/kpis"); res.Code != http.StatusInternalServerError {
		t.Errorf("missing file: %d %s", res.Code, res.Body.String())
	}
}

func TestExportPanel(t *testing.T) {
	_, router := newTestRouter(t, fixture(t), nil)
	res := get(t, router, "/api/export/panel.xlsx?classification=fear")
	if res.Code != http.StatusOK {
		t.Fatalf("export: %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("content type = %q", ct)
	}
	f, err := excelize.OpenReader(bytes.NewReader(res.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Panel")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "account" {
		t.Errorf("sheet rows = %v", rows)
	}
}

func TestLiveEndpoint(t *testing.T) {
	_, router := newTestRouter(t, fixture(t), nil)
	res := get(t, router, "/api/live")
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"enabled":false`) {
		t.Fatalf("disabled live: %d %s", res.Code, res.Body.String())
	}

	cfg := fixture(t)
	cfg.Live.Enabled = true
	fetcher := &fakeFetcher{}
	_, router = newTestRouter(t, cfg, fetcher)

	var body struct {
		Enabled bool `json:"enabled"`
		Summary struct {
			LastPrice  float64 `json:"last_price"`
			VolumeUSD  float64 `json:"volume_usd"`
			LatestSide string  `json:"latest_side"`
		} `json:"summary"`
		Trades []models.LiveTrade `json:"trades"`
	}
	decode(t, get(t, router, "/api/live?symbol=ethusdt&limit=5"), &body)
	if !body.Enabled || len(body.Trades) != 2 {
		t.Fatalf("live body = %+v", body)
	}
	if body.Summary.LastPrice != 101 || body.Summary.VolumeUSD != 302 || body.Summary.LatestSide != "Sell" {
		t.Errorf("summary = %+v", body.Summary)
	}
	if fetcher.symbol != "ETHUSDT" || fetcher.limit != 5 {
		t.Errorf("fetch called with %s/%d", fetcher.symbol, fetcher.limit)
	}
	if res := get(t, router, "/api/live?limit=0"); res.Code != http.StatusBadRequest {
		t.Errorf("limit 0: %d", res.Code)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	srv, router := newTestRouter(t, fixture(t), nil)

	if res := get(t, router, "/api/panel"); res.Code != http.StatusOK {
		t.Fatalf("panel: %d", res.Code)
	}
	if len(srv.metricStore.snapshot("pipeline")) == 0 {
		t.Fatalf("pipeline metrics were not captured")
	}

	var body struct {
		Metrics []map[string]interface{} `json:"metrics"`
	}
	decode(t, get(t, router, "/api/metrics?component=pipeline"), &body)
	if len(body.Metrics) == 0 {
		t.Fatalf("no metrics returned")
	}

	res := get(t, router, "/metrics")
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "tradersentiment_pipeline_runs_total") {
		t.Fatalf("prometheus: %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "tradersentiment_http_requests_total") {
		t.Errorf("request counter missing")
	}
}

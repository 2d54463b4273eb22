package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/secsage/vulnsage/internal/log"
	"github.com/secsage/vulnsage/internal/rag"
	"github.com/secsage/vulnsage/internal/scrape"
	"github.com/secsage/vulnsage/internal/store"
)

type stubEngine struct {
	result rag.Result
	err    error
	panics bool
	lastK  int
}

func (s *stubEngine) Answer(_ context.Context, query string, k int) (rag.Result, error) {
	if s.panics {
		panic("engine exploded")
	}
	if strings.TrimSpace(query) == "" {
		return rag.Result{}, rag.ErrEmptyQuery
	}
	s.lastK = k
	return s.result, s.err
}

type stubVulnStore struct {
	records    map[string]store.Record
	lastFilter store.Filter
	stats      store.Stats
	err        error
}

func (s *stubVulnStore) Get(_ context.Context, id string) (store.Record, error) {
	if s.err != nil {
		return store.Record{}, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *stubVulnStore) List(_ context.Context, filter store.Filter) ([]store.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastFilter = filter
	out := make([]store.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubVulnStore) Delete(_ context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *stubVulnStore) CollectStats(_ context.Context) (store.Stats, error) {
	return s.stats, s.err
}

type stubIngestor struct {
	stats     scrape.Stats
	lastPages int
}

func (s *stubIngestor) Run(_ context.Context, pages int) (scrape.Stats, error) {
	s.lastPages = pages
	return s.stats, nil
}

func (s *stubIngestor) Reindex(_ context.Context, _ int) (int, int, error) {
	return 2, 1, nil
}

func djangoRecord() store.Record {
	return store.Record{
		ID:            "SNYK-PY-DJANGO-1",
		Package:       "django",
		Severity:      store.SeverityHigh,
		Description:   "SQL injection",
		PublishedDate: "2024-01-01",
	}
}

func newTestServer(t *testing.T, cfg ServerConfig) *httptest.Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func defaultConfig() ServerConfig {
	return ServerConfig{
		Engine: &stubEngine{},
		Store:  &stubVulnStore{records: map[string]store.Record{}},
	}
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, defaultConfig())

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("status=%d body=%v", resp.StatusCode, body)
	}
}

func TestReadyWithoutPool(t *testing.T) {
	ts := newTestServer(t, defaultConfig())

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("GET /ready failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestQueryEndpoint(t *testing.T) {
	engine := &stubEngine{result: rag.Result{
		Answer:  "django has a SQL injection issue (SNYK-PY-DJANGO-1).",
		Sources: []store.Record{djangoRecord()},
	}}
	cfg := defaultConfig()
	cfg.Engine = engine
	cfg.DefaultK = 7
	ts := newTestServer(t, cfg)

	resp, err := http.Post(ts.URL+"/api/query", "application/json",
		strings.NewReader(`{"query":"What vulnerabilities affect django?"}`))
	if err != nil {
		t.Fatalf("POST /api/query failed: %v", err)
	}
	var result rag.Result
	decodeBody(t, resp, &result)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(result.Sources) != 1 || result.Sources[0].ID != "SNYK-PY-DJANGO-1" {
		t.Errorf("sources = %+v", result.Sources)
	}
	if engine.lastK != 7 {
		t.Errorf("k = %d, want configured default 7", engine.lastK)
	}
}

func TestQueryEndpointRejectsEmptyQuery(t *testing.T) {
	ts := newTestServer(t, defaultConfig())

	resp, err := http.Post(ts.URL+"/api/query", "application/json", strings.NewReader(`{"query":"  "}`))
	if err != nil {
		t.Fatalf("POST /api/query failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestQueryEndpointRejectsBadJSON(t *testing.T) {
	ts := newTestServer(t, defaultConfig())

	resp, err := http.Post(ts.URL+"/api/query", "application/json", strings.NewReader(`{"query":`))
	if err != nil {
		t.Fatalf("POST /api/query failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListVulnerabilitiesNormalizesSeverity(t *testing.T) {
	st := &stubVulnStore{records: map[string]store.Record{"SNYK-PY-DJANGO-1": djangoRecord()}}
	cfg := defaultConfig()
	cfg.Store = st
	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/api/vulnerabilities?severity=h&limit=10")
	if err != nil {
		t.Fatalf("GET /api/vulnerabilities failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if st.lastFilter.Severity != store.SeverityHigh {
		t.Errorf("severity filter = %q, want normalized %q", st.lastFilter.Severity, store.SeverityHigh)
	}
	if st.lastFilter.Limit != 10 {
		t.Errorf("limit = %d, want 10", st.lastFilter.Limit)
	}
}

func TestListVulnerabilitiesRejectsUnknownSeverity(t *testing.T) {
	ts := newTestServer(t, defaultConfig())

	resp, err := http.Get(ts.URL + "/api/vulnerabilities?severity=urgent")
	if err != nil {
		t.Fatalf("GET /api/vulnerabilities failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetVulnerability(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store = &stubVulnStore{records: map[string]store.Record{"SNYK-PY-DJANGO-1": djangoRecord()}}
	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/api/vulnerabilities/SNYK-PY-DJANGO-1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var rec store.Record
	decodeBody(t, resp, &rec)
	if resp.StatusCode != http.StatusOK || rec.Severity != store.SeverityHigh {
		t.Errorf("status=%d record=%+v", resp.StatusCode, rec)
	}

	resp, err = http.Get(ts.URL + "/api/vulnerabilities/SNYK-PY-MISSING-0")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteVulnerability(t *testing.T) {
	st := &stubVulnStore{records: map[string]store.Record{"SNYK-PY-DJANGO-1": djangoRecord()}}
	cfg := defaultConfig()
	cfg.Store = st
	ts := newTestServer(t, cfg)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/vulnerabilities/SNYK-PY-DJANGO-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if len(st.records) != 0 {
		t.Errorf("record not deleted: %v", st.records)
	}
}

func TestStatsEndpoint(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store = &stubVulnStore{stats: store.Stats{
		Total:      3,
		BySeverity: map[string]int{store.SeverityHigh: 2, store.SeverityLow: 1},
	}}
	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/api/vulnerabilities/stats")
	if err != nil {
		t.Fatalf("GET /api/vulnerabilities/stats failed: %v", err)
	}
	var stats store.Stats
	decodeBody(t, resp, &stats)
	if stats.Total != 3 || stats.BySeverity[store.SeverityHigh] != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestScrapeEndpoint(t *testing.T) {
	ingestor := &stubIngestor{stats: scrape.Stats{Fetched: 30, Stored: 28}}
	cfg := defaultConfig()
	cfg.Ingestor = ingestor
	ts := newTestServer(t, cfg)

	resp, err := http.Post(ts.URL+"/api/scrape", "application/json", strings.NewReader(`{"pages":2}`))
	if err != nil {
		t.Fatalf("POST /api/scrape failed: %v", err)
	}
	var stats scrape.Stats
	decodeBody(t, resp, &stats)
	if resp.StatusCode != http.StatusOK || stats.Stored != 28 {
		t.Errorf("status=%d stats=%+v", resp.StatusCode, stats)
	}
	if ingestor.lastPages != 2 {
		t.Errorf("pages = %d, want 2", ingestor.lastPages)
	}

	resp, err = http.Post(ts.URL+"/api/scrape", "application/json", strings.NewReader(`{"pages":0}`))
	if err != nil {
		t.Fatalf("POST /api/scrape failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for zero pages", resp.StatusCode)
	}
}

func TestScrapeDisabledWithoutIngestor(t *testing.T) {
	ts := newTestServer(t, defaultConfig())

	resp, err := http.Post(ts.URL+"/api/scrape", "application/json", strings.NewReader(`{"pages":1}`))
	if err != nil {
		t.Fatalf("POST /api/scrape failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when ingestion is disabled", resp.StatusCode)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	cfg := defaultConfig()
	cfg.Engine = &stubEngine{panics: true}
	ts := newTestServer(t, cfg)

	resp, err := http.Post(ts.URL+"/api/query", "application/json", strings.NewReader(`{"query":"boom"}`))
	if err != nil {
		t.Fatalf("POST /api/query failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 from recovery middleware", resp.StatusCode)
	}
}

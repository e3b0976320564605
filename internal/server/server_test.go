package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shelfscan/shelfscan/internal/analyzer"
	"github.com/shelfscan/shelfscan/internal/app"
	"github.com/shelfscan/shelfscan/internal/model"
	"github.com/shelfscan/shelfscan/internal/scrape"
	"github.com/shelfscan/shelfscan/internal/server"
	"github.com/shelfscan/shelfscan/internal/session"
	"github.com/shelfscan/shelfscan/internal/store"
	"github.com/shelfscan/shelfscan/internal/testutil"
)

const (
	siteURL    = "https://shop.example.com/"
	aliceToken = "token-alice"
)

func longText(n int) string {
	return strings.Repeat("product lamp chair rug shelf ", n/29+1)[:n]
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	logger := &testutil.DummyLogger{}

	st, err := store.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	pages := &testutil.DummyPageSource{
		Pages: map[string]*scrape.PageContent{
			siteURL: {URL: siteURL, Title: "Shop", Text: longText(500)},
		},
	}
	est := &testutil.DummyEstimator{
		Estimates: map[string]*model.PageEstimate{
			siteURL: {ProductCount: 6, PageType: "home", Confidence: 70},
		},
	}
	anl := analyzer.New(analyzer.DefaultConfig(), pages, &testutil.DummyDiscoverer{}, est, analyzer.NopPacer{}, logger)

	sessions := session.NewManager(session.NewStaticProvider(map[string]session.User{
		aliceToken: {ID: "alice", Name: "Alice"},
	}), logger)

	appCfg := app.DefaultConfig()
	appCfg.DataDir = t.TempDir()
	orch := app.NewOrchestratorWith(appCfg, nil, anl, st, sessions, logger)

	s := server.NewServerWith(server.Config{ListenAddr: ":0"}, orch, logger)
	t.Cleanup(func() { s.Close() })
	return s
}

func doJSON(t *testing.T, s http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func signIn(t *testing.T, s *server.Server) {
	t.Helper()
	rec := doJSON(t, s, "POST", "/auth/signin", "", `{"token":"`+aliceToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign-in: %d %s", rec.Code, rec.Body.String())
	}
}

// startAndWait starts a run over the REST API and polls the job until it
// leaves the running states.
func startAndWait(t *testing.T, s *server.Server, mode string) app.Job {
	t.Helper()

	rec := doJSON(t, s, "POST", "/analyses", aliceToken, `{"url":"`+siteURL+`","mode":"`+mode+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start analysis: %d %s", rec.Code, rec.Body.String())
	}
	var job app.Job
	decodeJSON(t, rec, &job)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, s, "GET", "/jobs/"+job.ID, aliceToken, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get job: %d %s", rec.Code, rec.Body.String())
		}
		decodeJSON(t, rec, &job)
		if job.Status != app.JobPending && job.Status != app.JobRunning {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
	return job
}

func TestCORSHeadersAndPreflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/healthz", "", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}

	rec = doJSON(t, s, "OPTIONS", "/analyses", "", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, path := range []string{"/analyses", "/records", "/jobs"} {
		method := "GET"
		if path == "/analyses" {
			method = "POST"
		}
		rec := doJSON(t, s, method, path, "", "{}")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", method, path, rec.Code)
		}
	}

	rec := doJSON(t, s, "POST", "/analyses", "bogus-token", "{}")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown token = %d, want 401", rec.Code)
	}
}

func TestSignInRejectsUnknownToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/auth/signin", "", `{"token":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("sign-in with bad token = %d, want 401", rec.Code)
	}
}

func TestStartAnalysisBadURL(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	signIn(t, s)

	rec := doJSON(t, s, "POST", "/analyses", aliceToken, `{"url":"examplecom"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad url = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, "POST", "/analyses", aliceToken, `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	signIn(t, s)

	job := startAndWait(t, s, "multi-page")
	if job.Status != app.JobDone {
		t.Fatalf("job = %+v, want done", job)
	}
	if job.Result == nil || job.Result.TotalProducts != 6 {
		t.Fatalf("result = %+v", job.Result)
	}

	// The record shows up in history.
	rec := doJSON(t, s, "GET", "/records", aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("records: %d", rec.Code)
	}
	var records []model.AnalysisRecord
	decodeJSON(t, rec, &records)
	if len(records) != 1 || records[0].ID != job.RecordID {
		t.Fatalf("records = %+v", records)
	}
	if records[0].ProductCount == nil || *records[0].ProductCount != 6 {
		t.Errorf("record count = %v", records[0].ProductCount)
	}

	// Single record fetch.
	rec = doJSON(t, s, "GET", "/records/"+job.RecordID, aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get record = %d", rec.Code)
	}
}

func TestExportCSVDownload(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	signIn(t, s)

	job := startAndWait(t, s, "multi-page")

	rec := doJSON(t, s, "GET", "/records/"+job.RecordID+"/export", aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "product-analysis-") || !strings.Contains(cd, ".csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "url,title,product_count") {
		t.Errorf("csv body = %q", rec.Body.String())
	}
}

func TestExportCSVEmptyRecordNoDownload(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	signIn(t, s)

	// A single-page run against an unknown URL fails, leaving a record with
	// no stored result; exporting it must produce no download.
	rec := doJSON(t, s, "POST", "/analyses", aliceToken, `{"url":"https://broken.example.com/","mode":"single-page"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start analysis: %d %s", rec.Code, rec.Body.String())
	}
	var job app.Job
	decodeJSON(t, rec, &job)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) && (job.Status == app.JobPending || job.Status == app.JobRunning) {
		rec = doJSON(t, s, "GET", "/jobs/"+job.ID, aliceToken, "")
		decodeJSON(t, rec, &job)
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != app.JobFailed {
		t.Fatalf("job status = %q, want failed", job.Status)
	}

	rec = doJSON(t, s, "GET", "/records/"+job.RecordID+"/export", aliceToken, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("export of empty record = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("export body = %q, want empty", rec.Body.String())
	}
}

func TestRecordNotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	signIn(t, s)

	rec := doJSON(t, s, "GET", "/records/does-not-exist", aliceToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing record = %d, want 404", rec.Code)
	}
}

func TestJobNotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	signIn(t, s)

	rec := doJSON(t, s, "GET", "/jobs/does-not-exist", aliceToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job = %d, want 404", rec.Code)
	}
	rec = doJSON(t, s, "DELETE", "/jobs/does-not-exist", aliceToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel missing job = %d, want 404", rec.Code)
	}
}

func TestCompareEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	signIn(t, s)

	first := startAndWait(t, s, "multi-page")
	second := startAndWait(t, s, "multi-page")

	rec := doJSON(t, s, "GET", "/records/compare?before="+first.RecordID+"&after="+second.RecordID, aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("compare = %d %s", rec.Code, rec.Body.String())
	}

	var cmp struct {
		TotalDelta int `json:"total_delta"`
	}
	decodeJSON(t, rec, &cmp)
	if cmp.TotalDelta != 0 {
		t.Errorf("TotalDelta = %d, want 0", cmp.TotalDelta)
	}

	rec = doJSON(t, s, "GET", "/records/compare?before="+first.RecordID, aliceToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing after param = %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
}

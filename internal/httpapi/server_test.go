package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/mtgate/internal/jobs"
	"horse.fit/mtgate/internal/locale"
	"horse.fit/mtgate/internal/metrics"
	"horse.fit/mtgate/internal/translation"
)

const validBody = `{"sourceLanguage":"en","targetLanguage":"de","segments":[{"idx":"s1","text":"Hello"},{"text":"Good morning"}]}`

type stubJobService struct {
	mu sync.Mutex

	submitID   jobs.ID
	submitErr  error
	status     jobs.Status
	statusErr  error
	result     *translation.Response
	resultErr  error
	syncErr    error
	notReady   bool
	lastSubmit *translation.Request
	lastQuery  jobs.ID
}

func (s *stubJobService) SubmitAsync(_ context.Context, req translation.Request) (jobs.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := req.Clone()
	s.lastSubmit = &copied
	return s.submitID, s.submitErr
}

func (s *stubJobService) QueryStatus(id jobs.ID) (jobs.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = id
	return s.status, s.statusErr
}

func (s *stubJobService) QueryResult(id jobs.ID) (*translation.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = id
	return s.result, s.resultErr
}

func (s *stubJobService) TranslateSync(ctx context.Context, req translation.Request) (*translation.Response, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return translation.NewLoopbackProvider(0).Translate(ctx, req)
}

func (s *stubJobService) Ready() bool {
	return !s.notReady
}

func newTestServer(svc JobService, opts Options) *Server {
	return NewServer(svc, metrics.New(), zerolog.Nop(), opts)
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSend(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestTranslateAsync_ReturnsJobID(t *testing.T) {
	t.Parallel()

	svc := &stubJobService{submitID: "job-1"}
	rec := doRequest(t, newTestServer(svc, Options{}), http.MethodPost, "/translateAsync", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp translateAsyncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != "job-1" {
		t.Fatalf("expected jobId job-1, got %q", resp.JobID)
	}
	if svc.lastSubmit == nil || len(svc.lastSubmit.Segments) != 2 || svc.lastSubmit.TargetLanguage != "de" {
		t.Fatalf("unexpected submitted request: %+v", svc.lastSubmit)
	}
}

func TestTranslateAsync_RejectsInvalidBody(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing target":   `{"sourceLanguage":"en","segments":[{"text":"Hello"}]}`,
		"no segments":      `{"sourceLanguage":"en","targetLanguage":"de","segments":[]}`,
		"unknown language": `{"sourceLanguage":"en","targetLanguage":"xx","segments":[{"text":"Hello"}]}`,
		"not json":         `segments please`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubJobService{submitID: "job-1"}
			rec := doRequest(t, newTestServer(svc, Options{}), http.MethodPost, "/translateAsync", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if payload := decodeJSend(t, rec); payload["status"] != "fail" {
				t.Fatalf("expected jsend fail, got %v", payload)
			}
			if svc.lastSubmit != nil {
				t.Fatalf("invalid request must not reach the job service")
			}
		})
	}
}

func TestTranslateAsync_MapsSubmissionErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  bool
		wantJSend  string
	}{
		{name: "busy", err: &jobs.Error{Kind: jobs.KindCapacityExceeded}, wantStatus: http.StatusTooManyRequests, wantRetry: true, wantJSend: "fail"},
		{name: "stopped", err: &jobs.Error{Kind: jobs.KindUnavailable, Detail: "shutting down"}, wantStatus: http.StatusServiceUnavailable, wantRetry: true, wantJSend: "error"},
		{name: "internal", err: &jobs.Error{Kind: jobs.KindInternal, Detail: "duplicate job id"}, wantStatus: http.StatusInternalServerError, wantJSend: "error"},
		{name: "plain error", err: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError, wantJSend: "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubJobService{submitErr: tc.err}
			rec := doRequest(t, newTestServer(svc, Options{}), http.MethodPost, "/translateAsync", validBody)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get("Retry-After") != ""; got != tc.wantRetry {
				t.Fatalf("Retry-After present = %v, want %v", got, tc.wantRetry)
			}
			payload := decodeJSend(t, rec)
			if payload["status"] != tc.wantJSend {
				t.Fatalf("expected jsend %s, got %v", tc.wantJSend, payload)
			}
			if tc.wantStatus == http.StatusInternalServerError && payload["message"] != "Internal server error" {
				t.Fatalf("internal causes must not leak, got %v", payload["message"])
			}
		})
	}
}

func TestTranslateAsyncStatus(t *testing.T) {
	t.Parallel()

	svc := &stubJobService{status: jobs.Status{Status: jobs.StatusFailed, Detail: "translation failed: boom"}}
	rec := doRequest(t, newTestServer(svc, Options{}), http.MethodGet, "/translateAsyncStatus/job-7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastQuery != "job-7" {
		t.Fatalf("expected query for job-7, got %q", svc.lastQuery)
	}

	var resp asyncStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "failed" || resp.Detail != "translation failed: boom" {
		t.Fatalf("unexpected status payload: %+v", resp)
	}
}

func TestTranslateAsyncStatus_UnknownJob(t *testing.T) {
	t.Parallel()

	svc := &stubJobService{statusErr: &jobs.Error{Kind: jobs.KindNotFound, JobID: "nope"}}
	rec := doRequest(t, newTestServer(svc, Options{}), http.MethodGet, "/translateAsyncStatus/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSend(t, rec)
	data, _ := payload["data"].(map[string]any)
	if payload["status"] != "fail" || data["jobId"] != "nope" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestTranslateAsyncResult_MapsJobErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{name: "not found", err: &jobs.Error{Kind: jobs.KindNotFound, JobID: "job-1"}, wantStatus: http.StatusNotFound},
		{name: "running", err: &jobs.Error{Kind: jobs.KindNotReady, JobID: "job-1"}, wantStatus: http.StatusConflict},
		{name: "failed", err: &jobs.Error{Kind: jobs.KindJobFailed, JobID: "job-1", Detail: "translation timed out after 5m0s"}, wantStatus: http.StatusUnprocessableEntity, wantDetail: "translation timed out after 5m0s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubJobService{resultErr: tc.err}
			rec := doRequest(t, newTestServer(svc, Options{}), http.MethodGet, "/translateAsyncResult/job-1", "")
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			payload := decodeJSend(t, rec)
			if payload["status"] != "fail" {
				t.Fatalf("expected jsend fail, got %v", payload)
			}
			data, _ := payload["data"].(map[string]any)
			if data["jobId"] != "job-1" {
				t.Fatalf("expected jobId in data, got %v", payload)
			}
			if tc.wantDetail != "" && data["detail"] != tc.wantDetail {
				t.Fatalf("expected detail %q, got %v", tc.wantDetail, data["detail"])
			}
		})
	}
}

func TestTranslateAsyncResult_ReturnsResponse(t *testing.T) {
	t.Parallel()

	idx := "s1"
	svc := &stubJobService{result: &translation.Response{
		SourceLanguage: "en",
		TargetLanguage: "de",
		Segments: []translation.TranslatedSegment{
			{Idx: &idx, Text: "Hello", TranslatedText: "Hallo"},
		},
	}}
	rec := doRequest(t, newTestServer(svc, Options{}), http.MethodGet, "/translateAsyncResult/job-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp translation.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Segments) != 1 || resp.Segments[0].TranslatedText != "Hallo" || resp.Segments[0].Idx == nil || *resp.Segments[0].Idx != "s1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestTranslate_Sync(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(&stubJobService{}, Options{}), http.MethodPost, "/translate", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp translation.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Segments) != 2 || resp.Segments[1].TranslatedText != "Good morning [de]" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestTranslate_EngineFailure(t *testing.T) {
	t.Parallel()

	svc := &stubJobService{syncErr: &jobs.Error{Kind: jobs.KindEngineFailure, Detail: "translation failed: connection refused"}}
	rec := doRequest(t, newTestServer(svc, Options{}), http.MethodPost, "/translate", validBody)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSend(t, rec)
	message, _ := payload["message"].(string)
	if payload["status"] != "error" || !strings.Contains(message, "connection refused") {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		svc       *stubJobService
		readiness func(context.Context) error
		want      string
	}{
		{name: "ready", svc: &stubJobService{}, want: "ok"},
		{name: "stopped", svc: &stubJobService{notReady: true}, want: "not_ok"},
		{name: "engine down", svc: &stubJobService{}, readiness: func(context.Context) error { return fmt.Errorf("dial tcp: refused") }, want: "not_ok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(tc.svc, Options{Readiness: tc.readiness})
			rec := doRequest(t, s, http.MethodPost, "/status", `{"metadata":{"caller":"uptime-check"}}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp statusResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tc.want {
				t.Fatalf("expected status %q, got %q", tc.want, resp.Status)
			}
			if resp.Metadata["caller"] != "uptime-check" {
				t.Fatalf("expected metadata to be echoed, got %v", resp.Metadata)
			}
		})
	}
}

func TestLanguagesEndpoint(t *testing.T) {
	t.Parallel()

	pairs, err := locale.ParsePairs("en:de,de:en")
	if err != nil {
		t.Fatalf("parse pairs: %v", err)
	}
	s := newTestServer(&stubJobService{}, Options{LanguagePairs: pairs})

	rec := doRequest(t, s, http.MethodPost, "/languages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp languagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.LanguagePairs) != 2 || resp.LanguagePairs[0].Source != "en" || resp.LanguagePairs[0].Target != "de" {
		t.Fatalf("unexpected pairs: %+v", resp.LanguagePairs)
	}

	empty := doRequest(t, newTestServer(&stubJobService{}, Options{}), http.MethodPost, "/languages", "{}")
	if !strings.Contains(empty.Body.String(), `"languagePairs":[]`) {
		t.Fatalf("expected an empty list, got %s", empty.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestServer(&stubJobService{}, Options{}), http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if payload := decodeJSend(t, rec); payload["status"] != "fail" {
		t.Fatalf("expected jsend fail, got %v", payload)
	}
}

func TestErrorsAreRenderedOnce(t *testing.T) {
	t.Parallel()

	e := newTestServer(&stubJobService{}, Options{}).Handler()
	render := e.HTTPErrorHandler
	var calls int
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		calls++
		render(err, c)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("expected the error handler to run once, ran %d times", calls)
	}
}

func TestAsyncRoundTrip(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry(jobs.RegistryOptions{Logger: zerolog.Nop()})
	pool := jobs.NewPool(jobs.PoolOptions{MaxConcurrent: 2, MaxQueued: 4, Logger: zerolog.Nop()})
	m := metrics.New()
	controller := jobs.NewController(registry, pool, translation.NewLoopbackProvider(0), jobs.Options{
		Observers: []jobs.Observer{m},
		Logger:    zerolog.Nop(),
	})
	m.WatchController(controller)
	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start controller: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = controller.Shutdown(ctx)
	})

	s := NewServer(controller, m, zerolog.Nop(), Options{})

	rec := doRequest(t, s, http.MethodPost, "/translateAsync", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var submitted translateAsyncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	if submitted.JobID == "" {
		t.Fatalf("expected a job id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doRequest(t, s, http.MethodGet, "/translateAsyncStatus/"+submitted.JobID, "")
		var status asyncStatusResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Status == "done" {
			break
		}
		if status.Status != "running" {
			t.Fatalf("unexpected status %+v", status)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s did not finish", submitted.JobID)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = doRequest(t, s, http.MethodGet, "/translateAsyncResult/"+submitted.JobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("result: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp translation.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(resp.Segments) != 2 || resp.Segments[0].TranslatedText != "Hello [de]" {
		t.Fatalf("unexpected result: %+v", resp)
	}

	// Observers run after the terminal write, so the finished counter can lag the status.
	wants := []string{
		"mtgate_jobs_submitted_total 1",
		`mtgate_jobs_finished_total{state="done"} 1`,
		`mtgate_http_requests_total{method="POST",path="/translateAsync",status_code="200"} 1`,
	}
	deadline = time.Now().Add(5 * time.Second)
	for {
		body := doRequest(t, s, http.MethodGet, "/metrics", "").Body.String()
		missing := ""
		for _, want := range wants {
			if !strings.Contains(body, want) {
				missing = want
				break
			}
		}
		if missing == "" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %q in metrics output", missing)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type staticKeys map[string]bool

func (k staticKeys) Enabled() bool { return len(k) > 0 }

func (k staticKeys) Verify(key string) bool { return k[key] }

func TestAPIKeyRequired(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubJobService{submitID: "job-1"}, Options{APIKeys: staticKeys{"good": true}})

	rec := doRequest(t, s, http.MethodPost, "/translateAsync", validBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a key, got %d", rec.Code)
	}

	for _, header := range []struct{ name, value string }{
		{name: "X-Api-Key", value: "good"},
		{name: "Authorization", value: "Bearer good"},
	} {
		req := httptest.NewRequest(http.MethodPost, "/translateAsync", strings.NewReader(validBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(header.name, header.value)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 with %s, got %d: %s", header.name, rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/translateAsyncStatus/job-1", nil)
	req.Header.Set("X-Api-Key", "bad")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong key, got %d", rec.Code)
	}

	if rec := doRequest(t, s, http.MethodPost, "/status", ""); rec.Code != http.StatusOK {
		t.Fatalf("status endpoint must stay public, got %d", rec.Code)
	}
}

// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/docqueue/internal/client"
	"github.com/tomtom215/docqueue/internal/handlers"
	"github.com/tomtom215/docqueue/internal/health"
	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/queue"
	"github.com/tomtom215/docqueue/internal/status"
	"github.com/tomtom215/docqueue/internal/store"
	ws "github.com/tomtom215/docqueue/internal/websocket"
)

const ingestPayload = `{"documentId":"doc-1","roomId":"room-1","fileUrl":"https://files.example.com/a.pdf"}`

type testEnv struct {
	store  *store.MemoryStore
	queue  *queue.MemoryQueue
	router http.Handler
}

// envelope decodes the response wrapper with the data left raw.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	reg := jobs.NewRegistry()
	noop := jobs.HandlerFunc(func(context.Context, json.RawMessage, jobs.ProgressReporter) (json.RawMessage, error) {
		return nil, nil
	})
	reg.MustRegister(jobs.TypeDocumentIngest, noop)
	reg.MustRegister(jobs.TypePodcastGenerate, noop)

	s := store.NewMemoryStore()
	q := queue.NewMemoryQueue()
	h := NewHandler(HandlerConfig{
		Jobs:     client.New(s, q, reg, nil, 3),
		Status:   status.NewService(s),
		Health:   health.NewMonitor(s, q, reg.Types(), health.DefaultConfig()),
		Hub:      ws.NewHub(nil),
		Payloads: handlers.ValidatorFor,
		Origins:  []string{"https://app.example.com"},
	})
	return &testEnv{
		store:  s,
		queue:  q,
		router: NewRouter(h, RouterConfig{APIToken: token}),
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: body is not an envelope: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func enqueueBody(t jobs.Type, extra string) string {
	return fmt.Sprintf(`{"type":%q,"payload":%s%s}`, t, ingestPayload, extra)
}

func TestEnqueueAndPoll(t *testing.T) {
	env := newTestEnv(t, "")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/jobs", enqueueBody(jobs.TypeDocumentIngest, ""))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created EnqueueResponse
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Status != jobs.StatusWaiting {
		t.Fatalf("created = %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/jobs/"+created.ID {
		t.Errorf("Location = %q", loc)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	// Polling is idempotent.
	var first, second status.JobStatus
	for _, dst := range []*status.JobStatus{&first, &second} {
		rec, resp = env.do(t, http.MethodGet, "/api/v1/jobs/"+created.ID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("poll status = %d", rec.Code)
		}
		if err := json.Unmarshal(resp.Data, dst); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	if first.Status != jobs.StatusWaiting || first.Attempts != 0 || first.MaxAttempts != 3 {
		t.Errorf("status = %+v", first)
	}
	if !first.UpdatedAt.Equal(second.UpdatedAt) || first.Status != second.Status {
		t.Errorf("polling changed the job: %+v then %+v", first, second)
	}
}

func TestEnqueueDelayed(t *testing.T) {
	env := newTestEnv(t, "")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/jobs", enqueueBody(jobs.TypeDocumentIngest, `,"delaySeconds":5`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created EnqueueResponse
	_ = json.Unmarshal(resp.Data, &created)
	if created.Status != jobs.StatusDelayed {
		t.Fatalf("status = %s, want delayed", created.Status)
	}

	j, err := env.store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if j.RunAt == nil || time.Until(*j.RunAt) < 4*time.Second {
		t.Errorf("runAt = %v, want about 5s out", j.RunAt)
	}
	if _, delayed, _ := env.queue.Depth(context.Background(), jobs.TypeDocumentIngest); delayed != 1 {
		t.Errorf("delayed depth = %d", delayed)
	}
}

func TestEnqueueIdempotentID(t *testing.T) {
	env := newTestEnv(t, "")
	body := enqueueBody(jobs.TypeDocumentIngest, `,"id":"room-1:doc-1"`)

	for i := 0; i < 2; i++ {
		rec, resp := env.do(t, http.MethodPost, "/api/v1/jobs", body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("attempt %d status = %d", i, rec.Code)
		}
		var created EnqueueResponse
		_ = json.Unmarshal(resp.Data, &created)
		if created.ID != "room-1:doc-1" {
			t.Fatalf("id = %q", created.ID)
		}
	}
	if waiting, _, _ := env.queue.Depth(context.Background(), jobs.TypeDocumentIngest); waiting != 1 {
		t.Errorf("waiting depth = %d, want 1", waiting)
	}
}

func TestEnqueueRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{"type":`, CodeBadRequest},
		{"unknown field", `{"type":"document-ingest","priority":1}`, CodeBadRequest},
		{"missing type", `{"payload":{}}`, CodeValidation},
		{"unknown type", `{"type":"video-transcode","payload":{}}`, CodeValidation},
		{"bad id", enqueueBody(jobs.TypeDocumentIngest, `,"id":"has space"`), CodeValidation},
		{"negative delay", enqueueBody(jobs.TypeDocumentIngest, `,"delaySeconds":-1`), CodeValidation},
		{"too many attempts", enqueueBody(jobs.TypeDocumentIngest, `,"maxAttempts":26`), CodeValidation},
		{"payload missing fields", `{"type":"document-ingest","payload":{"roomId":"r"}}`, CodeValidation},
		{"podcast without documents", `{"type":"podcast-generate","payload":{"roomId":"r","documentIds":[]}}`, CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			rec, resp := env.do(t, http.MethodPost, "/api/v1/jobs", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if resp.Status != "error" || resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("envelope = %+v, want code %s", resp, tt.code)
			}
			if w, d, _ := env.queue.Depth(context.Background(), jobs.TypeDocumentIngest); w+d != 0 {
				t.Error("rejected request reached the queue")
			}
		})
	}
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t, "")
	rec, resp := env.do(t, http.MethodGet, "/api/v1/jobs/nope", "")
	if rec.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Fatalf("status = %d, envelope %+v", rec.Code, resp)
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t, "")
	_, resp := env.do(t, http.MethodPost, "/api/v1/jobs", enqueueBody(jobs.TypeDocumentIngest, `,"delaySeconds":60`))
	var created EnqueueResponse
	_ = json.Unmarshal(resp.Data, &created)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
	var st status.JobStatus
	_ = json.Unmarshal(resp.Data, &st)
	if st.Status != jobs.StatusFailed || st.Error != jobs.CancelledReason {
		t.Errorf("after cancel = %+v", st)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPost, "/api/v1/jobs/missing/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel missing status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	counts := []struct {
		status jobs.Status
		n      int
	}{
		{jobs.StatusWaiting, 0},
		{jobs.StatusCompleted, 7},
		{jobs.StatusFailed, 2},
		{jobs.StatusActive, 1},
	}
	now := time.Now()
	for _, c := range counts {
		for i := 0; i < c.n; i++ {
			err := env.store.Put(ctx, &jobs.Job{
				ID:          fmt.Sprintf("%s-%d", c.status, i),
				Type:        jobs.TypeDocumentIngest,
				Status:      c.status,
				MaxAttempts: 3,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/metrics?type=document-ingest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var m status.Metrics
	_ = json.Unmarshal(resp.Data, &m)
	if m.Completed != 7 || m.Failed != 2 || m.Active != 1 || m.ProcessingRate != 77.78 {
		t.Errorf("metrics = %+v", m)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/metrics?type=video", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	rec, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || resp.Status != "healthy" {
		t.Fatalf("healthy: status = %d, envelope status %q", rec.Code, resp.Status)
	}
	rec, _ = env.do(t, http.MethodGet, "/api/v1/health/live", "")
	if rec.Code != http.StatusOK {
		t.Errorf("live = %d", rec.Code)
	}

	// A fresh env: the monitor caches its last report.
	env = newTestEnv(t, "")
	_ = env.store.Close()
	rec, resp = env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Status != "error" {
		t.Errorf("store down: status = %d, envelope status %q", rec.Code, resp.Status)
	}
	rec, resp = env.do(t, http.MethodGet, "/api/v1/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Status != "not_ready" {
		t.Errorf("ready with store down: status = %d, %q", rec.Code, resp.Status)
	}
	rec, _ = env.do(t, http.MethodGet, "/api/v1/jobs/any", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("poll with store down = %d, want 503", rec.Code)
	}
}

func TestAPITokenGuardsMutations(t *testing.T) {
	env := newTestEnv(t, "s3cret")
	body := enqueueBody(jobs.TypeDocumentIngest, "")

	rec, _ := env.do(t, http.MethodPost, "/api/v1/jobs", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPost, "/api/v1/jobs", body, "Authorization", "Bearer s3cret")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("with token = %d", rec.Code)
	}
	// Reads stay open.
	rec, _ = env.do(t, http.MethodGet, "/api/v1/health/live", "")
	if rec.Code != http.StatusOK {
		t.Errorf("live = %d", rec.Code)
	}
}

func TestEnqueueRateLimit(t *testing.T) {
	reg := jobs.NewRegistry()
	reg.MustRegister(jobs.TypeDocumentIngest, jobs.HandlerFunc(func(context.Context, json.RawMessage, jobs.ProgressReporter) (json.RawMessage, error) {
		return nil, nil
	}))
	s := store.NewMemoryStore()
	q := queue.NewMemoryQueue()
	h := NewHandler(HandlerConfig{Jobs: client.New(s, q, reg, nil, 3), Status: status.NewService(s)})
	router := NewRouter(h, RouterConfig{Middleware: &ChiMiddlewareConfig{EnqueueRequests: 2, EnqueueWindow: time.Minute}})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(enqueueBody(jobs.TypeDocumentIngest, "")))
		req.RemoteAddr = "203.0.113.9:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", last)
	}
}

func TestWatchJobRejections(t *testing.T) {
	env := newTestEnv(t, "")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	_, resp := env.do(t, http.MethodPost, "/api/v1/jobs", enqueueBody(jobs.TypeDocumentIngest, ""))
	var created EnqueueResponse
	_ = json.Unmarshal(resp.Data, &created)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/jobs/"

	tests := []struct {
		name   string
		id     string
		origin string
		want   int
	}{
		{"unknown job", "missing", "https://app.example.com", http.StatusNotFound},
		{"no origin", created.ID, "", http.StatusForbidden},
		{"foreign origin", created.ID, "https://evil.example.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, res, err := websocket.DefaultDialer.Dial(wsURL+tt.id+"/watch", header)
			if err == nil {
				conn.Close()
				t.Fatal("dial succeeded")
			}
			if res == nil || res.StatusCode != tt.want {
				t.Errorf("response = %v, want %d", res, tt.want)
			}
		})
	}
}

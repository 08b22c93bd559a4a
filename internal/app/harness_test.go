package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"editpool/api/internal/export"
	"editpool/api/internal/persist"
	"editpool/api/internal/search"
	"editpool/api/internal/worker"
)

type harness struct {
	t       *testing.T
	blobs   persist.BlobStore
	svc     *Service
	handler http.Handler
	pool    *worker.Pool
	index   *search.Memory
}

func newHarness(t *testing.T, blobs persist.BlobStore, opts Options) *harness {
	t.Helper()
	if blobs == nil {
		blobs = persist.NewMemoryStore()
	}
	index := search.NewMemory()
	pool := worker.NewPool(1, 100)
	t.Cleanup(pool.Shutdown)
	svc := NewService(persist.NewAdapter(blobs), search.NewService(nil, index), export.NewService(), pool, opts)
	return &harness{
		t:       t,
		blobs:   blobs,
		svc:     svc,
		handler: NewHTTPServer(svc, "*").Handler(),
		pool:    pool,
		index:   index,
	}
}

func (h *harness) do(method, path, actor string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

// start creates a session owned by olivia and claimed by ed.
func (h *harness) start(text string) View {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/api/sessions", "ed", map[string]any{
		"title": "Greeting",
		"owner": "olivia",
		"text":  text,
	})
	if rr.Code != http.StatusCreated {
		h.t.Fatalf("start session: status %d body=%s", rr.Code, rr.Body.String())
	}
	return decodeView(h.t, rr)
}

func (h *harness) event(key, actor string, ev map[string]any) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.do(http.MethodPost, "/api/sessions/"+key+"/events", actor, ev)
}

// mustEvent dispatches ev as ed and fails the test unless it is accepted.
func (h *harness) mustEvent(key string, ev map[string]any) View {
	h.t.Helper()
	rr := h.event(key, "ed", ev)
	if rr.Code != http.StatusOK {
		h.t.Fatalf("event %v: status %d body=%s", ev, rr.Code, rr.Body.String())
	}
	return decodeView(h.t, rr)
}

func (h *harness) stored(key string) persist.Session {
	h.t.Helper()
	sess, err := persist.NewAdapter(h.blobs).Load(context.Background(), key)
	if err != nil {
		h.t.Fatalf("load stored session: %v", err)
	}
	return sess
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) View {
	t.Helper()
	var view View
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v body=%s", err, rr.Body.String())
	}
	return view
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v body=%s", err, rr.Body.String())
	}
	return body
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	body := decodeError(t, rr)
	if body["code"] != code {
		t.Fatalf("expected code %s, got %v", code, body["code"])
	}
	return body
}

func decodeJSON(data []byte, target any) error {
	return json.Unmarshal(data, target)
}

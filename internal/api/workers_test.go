package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/foreman/internal/model"
)

func registerWorker(t *testing.T, ts *httptest.Server, body string) model.Worker {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/workers", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/workers: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var w model.Worker
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return w
}

func TestRegisterWorkerValid(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	w := registerWorker(t, ts, `{"name":"runner-1","max_concurrent":4,"supported_agent_ids":["claude-code"]}`)

	if len(w.ID) != 26 {
		t.Errorf("ID length = %d, want 26", len(w.ID))
	}
	if w.Status != model.WorkerIdle {
		t.Errorf("Status = %q, want idle", w.Status)
	}
	if w.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", w.MaxConcurrent)
	}
}

func TestRegisterWorkerMissingAgents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/workers", "application/json", bytes.NewBufferString(`{"name":"runner-1"}`))
	if err != nil {
		t.Fatalf("POST /v1/workers: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWorkerHeartbeat(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	w := registerWorker(t, ts, `{"name":"runner-1","supported_agent_ids":["claude-code"]}`)

	resp, err := http.Post(ts.URL+"/v1/workers/"+w.ID+"/heartbeat", "application/json", bytes.NewBufferString(`{"status":"busy"}`))
	if err != nil {
		t.Fatalf("POST heartbeat: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got model.Worker
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Status != model.WorkerBusy {
		t.Errorf("Status = %q, want busy", got.Status)
	}
}

func TestWorkerHeartbeatRejectsBadStatus(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	w := registerWorker(t, ts, `{"name":"runner-1","supported_agent_ids":["claude-code"]}`)

	for _, status := range []string{"offline", "bogus"} {
		resp, err := http.Post(ts.URL+"/v1/workers/"+w.ID+"/heartbeat", "application/json", bytes.NewBufferString(`{"status":"`+status+`"}`))
		if err != nil {
			t.Fatalf("POST heartbeat: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status %q: code = %d, want 400", status, resp.StatusCode)
		}
	}

	// The rejected heartbeats must not have touched the worker.
	resp, err := http.Get(ts.URL + "/v1/workers/" + w.ID)
	if err != nil {
		t.Fatalf("GET worker: %v", err)
	}
	defer resp.Body.Close()
	var got model.Worker
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Status != model.WorkerIdle {
		t.Errorf("Status = %q, want idle", got.Status)
	}
}

func TestWorkerHeartbeatUnknown(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/workers/01JMISSING0000000000000000/heartbeat", "application/json", bytes.NewBufferString(`{"status":"idle"}`))
	if err != nil {
		t.Fatalf("POST heartbeat: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDrainWorker(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	w := registerWorker(t, ts, `{"name":"runner-1","supported_agent_ids":["claude-code"]}`)

	resp, err := http.Post(ts.URL+"/v1/workers/"+w.ID+"/drain", "application/json", nil)
	if err != nil {
		t.Fatalf("POST drain: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got model.Worker
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Status != model.WorkerDraining {
		t.Errorf("Status = %q, want draining", got.Status)
	}
}

func TestOfflineWorkerRecoversTasks(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	w := registerWorker(t, ts, `{"name":"runner-1","supported_agent_ids":["claude-code"]}`)

	resp, err := http.Post(ts.URL+"/v1/workers/"+w.ID+"/offline", "application/json", nil)
	if err != nil {
		t.Fatalf("POST offline: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got offlineWorkerResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Worker.Status != model.WorkerOffline {
		t.Errorf("Status = %q, want offline", got.Worker.Status)
	}
	if got.Recovery.Scanned != 0 {
		t.Errorf("Scanned = %d, want 0 for an idle worker", got.Recovery.Scanned)
	}
}

func TestListWorkers(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	registerWorker(t, ts, `{"name":"runner-1","supported_agent_ids":["claude-code"]}`)
	registerWorker(t, ts, `{"name":"runner-2","supported_agent_ids":["aider"]}`)

	resp, err := http.Get(ts.URL + "/v1/workers")
	if err != nil {
		t.Fatalf("GET /v1/workers: %v", err)
	}
	defer resp.Body.Close()

	var got []*model.Worker
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("workers = %d, want 2", len(got))
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/foreman/internal/model"
)

func createTask(t *testing.T, ts *httptest.Server, body string) model.Task {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/tasks", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/tasks: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var task model.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return task
}

func TestCreateTaskValid(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code","payload":"fix the login bug"}`)

	if len(task.ID) != 26 {
		t.Errorf("ID length = %d, want 26", len(task.ID))
	}
	if task.Status != model.StatusDraft {
		t.Errorf("Status = %q, want %q", task.Status, model.StatusDraft)
	}
	if task.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", task.MaxRetries)
	}
}

func TestCreateTaskQueuedImmediately(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code","queue":true}`)

	if task.Status != model.StatusQueued {
		t.Errorf("Status = %q, want %q", task.Status, model.StatusQueued)
	}
	if task.QueuedAt == nil {
		t.Error("QueuedAt not set")
	}
}

func TestCreateTaskMissingAgent(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/tasks", "application/json", bytes.NewBufferString(`{"payload":"x"}`))
	if err != nil {
		t.Fatalf("POST /v1/tasks: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateTaskInvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/tasks", "application/json", bytes.NewBufferString("not json"))
	if err != nil {
		t.Fatalf("POST /v1/tasks: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/tasks/01JMISSING0000000000000000")
	if err != nil {
		t.Fatalf("GET /v1/tasks: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListTasksFiltersByStatus(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	createTask(t, ts, `{"agent_definition_id":"claude-code"}`)
	createTask(t, ts, `{"agent_definition_id":"claude-code","queue":true}`)

	resp, err := http.Get(ts.URL + "/v1/tasks?status=queued")
	if err != nil {
		t.Fatalf("GET /v1/tasks: %v", err)
	}
	defer resp.Body.Close()

	var list listTasksResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("Total = %d, want 1", list.Total)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].Status != model.StatusQueued {
		t.Errorf("Tasks = %+v, want one queued task", list.Tasks)
	}
}

func TestQueueTaskTransition(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code"}`)

	resp, err := http.Post(ts.URL+"/v1/tasks/"+task.ID+"/queue", "application/json", nil)
	if err != nil {
		t.Fatalf("POST queue: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got model.Task
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Status != model.StatusQueued {
		t.Errorf("Status = %q, want queued", got.Status)
	}
}

func TestQueueTaskConflict(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code","queue":true}`)

	// Already queued; queueing again is a conflict.
	resp, err := http.Post(ts.URL+"/v1/tasks/"+task.ID+"/queue", "application/json", nil)
	if err != nil {
		t.Fatalf("POST queue: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestCancelTask(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code","queue":true}`)

	resp, err := http.Post(ts.URL+"/v1/tasks/"+task.ID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got model.Task
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Status != model.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}

	// Cancelling again is an idempotent success.
	resp2, err := http.Post(ts.URL+"/v1/tasks/"+task.ID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel again: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp2.StatusCode)
	}
}

func TestTaskFeedbackConflict(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code","queue":true}`)

	// Task is queued, not running; feedback cannot apply.
	body := `{"worker_id":"w1","status":"completed"}`
	resp, err := http.Post(ts.URL+"/v1/tasks/"+task.ID+"/status", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestTaskFeedbackMissingWorker(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code","queue":true}`)

	resp, err := http.Post(ts.URL+"/v1/tasks/"+task.ID+"/status", "application/json", bytes.NewBufferString(`{"status":"completed"}`))
	if err != nil {
		t.Fatalf("POST status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestReviewTaskConflict(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code"}`)

	resp, err := http.Post(ts.URL+"/v1/tasks/"+task.ID+"/review", "application/json", bytes.NewBufferString(`{"verdict":"approved"}`))
	if err != nil {
		t.Fatalf("POST review: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestGetTaskEvents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	task := createTask(t, ts, `{"agent_definition_id":"claude-code","queue":true}`)

	resp, err := http.Get(ts.URL + "/v1/tasks/" + task.ID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got taskEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// task.created plus task.queued.
	if len(got.Events) < 2 {
		t.Errorf("events = %d, want at least 2", len(got.Events))
	}
}

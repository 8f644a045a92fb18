package tbid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tbi-sim/tbi-core/pkg/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *JobStore) {
	t.Helper()
	store := NewJobStore()
	exec := NewJobExecutor(store, 2)
	srv := httptest.NewServer(NewHTTPServer(store, exec).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeJSON(t, resp)
	if body["status"] != "ok" {
		t.Fatalf("health status = %v, want ok", body["status"])
	}
}

func TestCreateJob(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/jobs", map[string]any{
		"job_id":          "job-1",
		"experiment_yaml": sampleExperimentYAML,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	body := decodeJSON(t, resp)
	job := body["job"].(map[string]any)
	if job["id"] != "job-1" || job["type"] != "sample" || job["status"] != "pending" {
		t.Fatalf("unexpected job: %v", job)
	}

	if _, ok := store.Get("job-1"); !ok {
		t.Fatalf("job not stored")
	}
}

func TestCreateJobWithAutoStart(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/jobs", map[string]any{
		"job_id":          "job-auto",
		"experiment_yaml": sampleExperimentYAML,
		"start":           true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	body := decodeJSON(t, resp)
	if got := body["job"].(map[string]any)["status"]; got != "running" && got != "completed" {
		t.Fatalf("auto-started job status = %v", got)
	}

	final := waitForTerminal(t, store, "job-auto")
	if final.Job.Status != models.JobStatusCompleted {
		t.Fatalf("job status = %q (%s), want completed", final.Job.Status, final.Job.Error)
	}
	if final.SampleResult == nil {
		t.Fatalf("sample result missing")
	}
}

func TestCreateJobInvalid(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/jobs", map[string]any{
		"experiment_yaml": "sample:\n  samples: -1\n",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/jobs", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d for empty yaml, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateJobDuplicate(t *testing.T) {
	srv, _ := newTestServer(t)

	req := map[string]any{"job_id": "dup", "experiment_yaml": sampleExperimentYAML}
	resp := postJSON(t, srv.URL+"/v1/jobs", req)
	resp.Body.Close()
	resp = postJSON(t, srv.URL+"/v1/jobs", req)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListJobs(t *testing.T) {
	srv, store := newTestServer(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Create(fmt.Sprintf("job-%d", i), models.JobTypeSample, JobInput{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := store.SetStatus("job-1", models.JobStatusRunning, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/jobs?status=running")
	if err != nil {
		t.Fatalf("GET /v1/jobs: %v", err)
	}
	body := decodeJSON(t, resp)
	jobs := body["jobs"].([]any)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 running job, got %d", len(jobs))
	}
	if jobs[0].(map[string]any)["id"] != "job-1" {
		t.Fatalf("wrong job in filtered list: %v", jobs[0])
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/jobs/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/jobs", map[string]any{
		"job_id":          "job-e2e",
		"experiment_yaml": trainExperimentYAML,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	// Result is not available before the job runs
	resp, err := http.Get(srv.URL + "/v1/jobs/job-e2e/result")
	if err != nil {
		t.Fatalf("GET result: %v", err)
	}
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("early result status = %d, want 412", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/jobs/job-e2e:start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	final := waitForTerminal(t, store, "job-e2e")
	if final.Job.Status != models.JobStatusCompleted {
		t.Fatalf("job status = %q (%s), want completed", final.Job.Status, final.Job.Error)
	}

	resp, err = http.Get(srv.URL + "/v1/jobs/job-e2e/result")
	if err != nil {
		t.Fatalf("GET result: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d, want 200", resp.StatusCode)
	}
	body := decodeJSON(t, resp)
	if body["train_result"] == nil {
		t.Fatalf("train result missing from response: %v", body)
	}

	resp, err = http.Get(srv.URL + "/v1/jobs/job-e2e/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}
	body = decodeJSON(t, resp)
	if len(body["metrics"].([]any)) == 0 {
		t.Fatalf("no metric aggregations returned")
	}

	resp, err = http.Get(srv.URL + "/v1/jobs/job-e2e/metrics/timeseries?metric=batch_mean_energy&config=config1")
	if err != nil {
		t.Fatalf("GET timeseries: %v", err)
	}
	body = decodeJSON(t, resp)
	points := body["points"].([]any)
	if len(points) != 10 {
		t.Fatalf("expected 10 time-series points, got %d", len(points))
	}
}

func TestStopJobOverHTTP(t *testing.T) {
	srv, store := newTestServer(t)

	if _, err := store.Create("job-c", models.JobTypeSample, JobInput{ExperimentYAML: sampleExperimentYAML}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp := postJSON(t, srv.URL+"/v1/jobs/job-c:stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	body := decodeJSON(t, resp)
	if body["job"].(map[string]any)["status"] != "cancelled" {
		t.Fatalf("stopped job status: %v", body)
	}

	// Stopping a terminal job conflicts
	resp = postJSON(t, srv.URL+"/v1/jobs/job-c:stop", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second stop status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMetricsUnavailable(t *testing.T) {
	srv, store := newTestServer(t)

	if _, err := store.Create("job-m", models.JobTypeTrain, JobInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, path := range []string{"/v1/jobs/job-m/metrics", "/v1/jobs/job-m/metrics/timeseries"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusPreconditionFailed {
			t.Fatalf("%s status = %d, want 412", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/jobs", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEventsStream(t *testing.T) {
	srv, store := newTestServer(t)

	if _, err := store.Create("job-ev", models.JobTypeSample, JobInput{ExperimentYAML: sampleExperimentYAML}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.SetStatus("job-ev", models.JobStatusCompleted, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/v1/jobs/job-ev/events?interval_ms=10")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	buf := make([]byte, 4096)
	var data []byte
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		data = append(data, buf[:n]...)
		if bytes.Contains(data, []byte("event: complete")) {
			return
		}
		if err != nil {
			break
		}
	}
	t.Fatalf("complete event not received, got: %s", data)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaflow/config"
	"mediaflow/job"
	"mediaflow/remote"
	"mediaflow/suggest"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mu   sync.Mutex
	jobs map[string]job.Job
}

func (m *mockService) set(j job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
}

func (m *mockService) GetJob(ctx context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	return &j, nil
}

func (m *mockService) ListJobs(ctx context.Context) ([]job.Job, error) {
	return nil, nil
}

type mockSubmitter struct {
	resp     *remote.SubmitResponse
	err      error
	endpoint string
	params   map[string]any
}

func (m *mockSubmitter) Submit(ctx context.Context, endpoint string, params map[string]any) (*remote.SubmitResponse, error) {
	m.endpoint = endpoint
	m.params = params
	return m.resp, m.err
}

type testEnv struct {
	router    *gin.Engine
	registry  *job.Registry
	service   *mockService
	submitter *mockSubmitter
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		BackendURL:         "http://backend",
		UploadPath:         "/uploads",
		PollInterval:       10 * time.Millisecond,
		RefreshInterval:    time.Hour,
		Retention:          time.Hour,
		LargeFileThreshold: 1 << 30,
		EventBuffer:        100,
	}
	reg := prometheus.NewRegistry()
	svc := &mockService{jobs: make(map[string]job.Job)}
	registry := job.NewRegistry(cfg, svc, nil, job.NewMetrics(reg))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	registry.Start(ctx)

	submitter := &mockSubmitter{}
	h := NewHandler(cfg, registry, suggest.NewEngine(cfg, nil), submitter)
	return &testEnv{
		router:    SetupRouter(h, reg),
		registry:  registry,
		service:   svc,
		submitter: submitter,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

const mergeFiles = `{"files": [
	{"name": "clip.mp4", "type": "video/mp4", "size": 1000},
	{"name": "voice.mp3", "type": "audio/mpeg", "size": 500}
]}`

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	env.do("GET", "/api/v1/jobs", "")
	w = env.do("GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mediaflow_active_jobs")
	assert.Contains(t, w.Body.String(), `mediaflow_http_requests_total{code="200",method="GET",route="/api/v1/jobs"} 1`)
}

func TestHandleRegisterAndListJobs(t *testing.T) {
	env := setupTestRouter(t)
	env.service.set(job.Job{ID: "j1", Status: job.StatusProcessing, Progress: 20, CreatedAt: 100})

	w := env.do("POST", "/api/v1/jobs", `{"id": "j1", "title": "Merge video with audio"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "Merge video with audio", decode(t, w)["title"])

	w = env.do("POST", "/api/v1/jobs", `{"title": "missing id"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Eventually(t, func() bool {
		j, _ := env.registry.Get("j1")
		return j.Status == job.StatusProcessing
	}, time.Second, 5*time.Millisecond)

	w = env.do("GET", "/api/v1/jobs/active", "")
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["count"])

	w = env.do("GET", "/api/v1/jobs/j1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Merge video with audio", decode(t, w)["title"])

	w = env.do("GET", "/api/v1/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCancelJob(t *testing.T) {
	env := setupTestRouter(t)
	env.service.set(job.Job{ID: "j1", Status: job.StatusProcessing})

	w := env.do("DELETE", "/api/v1/jobs/j1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.registry.Register("j1", nil)
	w = env.do("DELETE", "/api/v1/jobs/j1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	_, found := env.registry.Get("j1")
	assert.False(t, found)
}

func TestHandleGetJobResult(t *testing.T) {
	env := setupTestRouter(t)

	env.registry.Register("done", &job.Job{
		Status: job.StatusCompleted,
		Result: json.RawMessage(`{"url": "https://cdn/out.mp4", "summary": "Merged the narration onto the clip."}`),
	})
	w := env.do("GET", "/api/v1/jobs/done/result", "")
	require.Equal(t, http.StatusOK, w.Code)
	blocks := decode(t, w)["blocks"].([]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "video", blocks[0].(map[string]any)["type"])
	assert.Equal(t, "text", blocks[1].(map[string]any)["type"])

	env.registry.Register("broken", &job.Job{Status: job.StatusFailed, Error: "ffmpeg exited with 1"})
	w = env.do("GET", "/api/v1/jobs/broken/result", "")
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["failed"])
	assert.Equal(t, "ffmpeg exited with 1", resp["error"])

	env.service.set(job.Job{ID: "running", Status: job.StatusProcessing})
	env.registry.Register("running", &job.Job{Status: job.StatusProcessing})
	w = env.do("GET", "/api/v1/jobs/running/result", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do("GET", "/api/v1/jobs/unknown/result", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleNormalize(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("POST", "/api/v1/normalize", `{"result": {"filename": "thumb.png"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	blocks := decode(t, w)["blocks"].([]any)
	require.Len(t, blocks, 1)
	assert.Equal(t, "http://backend/uploads/thumb.png", blocks[0].(map[string]any)["url"])
	assert.Equal(t, "result", blocks[0].(map[string]any)["label"])

	w = env.do("POST", "/api/v1/normalize", `{"broken": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/v1/normalize", `{"status": "ok"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["blocks"])
}

func TestHandleAnalyze(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("POST", "/api/v1/suggestions", mergeFiles)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	primary := resp["primary"].(map[string]any)
	assert.Equal(t, "/v1/video/add/audio", primary["endpoint"])
	assert.Nil(t, primary["compatible"])
	assert.NotEmpty(t, resp["secondary"])

	w = env.do("POST", "/api/v1/suggestions", `{"files": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSubmitPrimary(t *testing.T) {
	t.Run("asynchronous job", func(t *testing.T) {
		env := setupTestRouter(t)
		env.submitter.resp = &remote.SubmitResponse{Success: true, JobID: "j9"}
		env.service.set(job.Job{ID: "j9", Status: job.StatusProcessing, Progress: 10})

		body := strings.Replace(mergeFiles, `]}`, `], "uploads": ["", "https://files/voice.mp3"]}`, 1)
		w := env.do("POST", "/api/v1/suggestions/primary/submit", body)
		require.Equal(t, http.StatusAccepted, w.Code)
		resp := decode(t, w)
		assert.Equal(t, "j9", resp["jobId"])
		opID := resp["operationId"].(string)

		assert.Equal(t, "/v1/video/add/audio", env.submitter.endpoint)
		assert.Equal(t, "http://backend/uploads/clip.mp4", env.submitter.params["video_url"])
		assert.Equal(t, "https://files/voice.mp3", env.submitter.params["audio_url"])

		w = env.do("GET", "/api/v1/operations/"+opID, "")
		require.Equal(t, http.StatusOK, w.Code)
		op := decode(t, w)
		assert.Equal(t, "j9", op["jobId"])
		steps := op["steps"].([]any)
		require.Len(t, steps, 4)
		assert.Equal(t, "active", steps[2].(map[string]any)["status"])

		env.service.set(job.Job{ID: "j9", Status: job.StatusCompleted, Progress: 100, Result: json.RawMessage(`{"url": "/uploads/merged.mp4"}`)})
		require.Eventually(t, func() bool {
			w := env.do("GET", "/api/v1/operations/"+opID, "")
			var op struct {
				Percent int `json:"percent"`
			}
			return json.Unmarshal(w.Body.Bytes(), &op) == nil && op.Percent == 100
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("synchronous result", func(t *testing.T) {
		env := setupTestRouter(t)
		env.submitter.resp = &remote.SubmitResponse{Success: true, Result: json.RawMessage(`{"url": "https://cdn/merged.mp4"}`)}

		w := env.do("POST", "/api/v1/suggestions/primary/submit", mergeFiles)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		require.Len(t, resp["blocks"], 1)

		w = env.do("GET", "/api/v1/operations/"+resp["operationId"].(string), "")
		assert.Equal(t, float64(100), decode(t, w)["percent"])
	})

	t.Run("submission fails", func(t *testing.T) {
		env := setupTestRouter(t)
		env.submitter.err = errors.New("unexpected status 503: busy")

		w := env.do("POST", "/api/v1/suggestions/primary/submit", mergeFiles)
		require.Equal(t, http.StatusBadGateway, w.Code)
		opID := decode(t, w)["operationId"].(string)

		w = env.do("GET", "/api/v1/operations/"+opID, "")
		op := decode(t, w)
		assert.Equal(t, true, op["failed"])
		steps := op["steps"].([]any)
		assert.Equal(t, "error", steps[1].(map[string]any)["status"])
	})

	t.Run("rejected without error text", func(t *testing.T) {
		env := setupTestRouter(t)
		env.submitter.resp = &remote.SubmitResponse{Success: false}

		w := env.do("POST", "/api/v1/suggestions/primary/submit", mergeFiles)
		require.Equal(t, http.StatusBadGateway, w.Code)
		resp := decode(t, w)
		assert.Contains(t, resp["error"], "submission rejected")
		assert.Nil(t, resp["blocks"])

		w = env.do("GET", "/api/v1/operations/"+resp["operationId"].(string), "")
		op := decode(t, w)
		assert.Equal(t, true, op["failed"])
		assert.NotEqual(t, float64(100), op["percent"])
	})

	t.Run("inline result wins over job id", func(t *testing.T) {
		env := setupTestRouter(t)
		env.submitter.resp = &remote.SubmitResponse{Success: true, JobID: "j7", Result: json.RawMessage(`{"url": "https://cdn/merged.mp4"}`)}

		w := env.do("POST", "/api/v1/suggestions/primary/submit", mergeFiles)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		assert.Equal(t, "j7", resp["jobId"])
		require.Len(t, resp["blocks"], 1)

		_, tracked := env.registry.Get("j7")
		assert.False(t, tracked)
	})

	t.Run("no suggestion", func(t *testing.T) {
		env := setupTestRouter(t)
		w := env.do("POST", "/api/v1/suggestions/primary/submit", `{"files": [{"name": "notes.docx", "type": "application/msword"}]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Empty(t, env.submitter.endpoint)
	})
}

func TestHandleGetOperation_NotFound(t *testing.T) {
	env := setupTestRouter(t)
	w := env.do("GET", "/api/v1/operations/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleEvents(t *testing.T) {
	env := setupTestRouter(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	w := env.do("GET", "/api/v1/events?since=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	env.registry.Register("j1", &job.Job{Status: job.StatusFailed, Error: "boom"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev job.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "j1", ev.JobID)
	assert.Equal(t, job.EventTypeFailed, ev.Type)
	assert.Equal(t, "boom", ev.Message)
}

package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/und3rrr/media-cleaner/config"
	"github.com/und3rrr/media-cleaner/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, string) {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, config.DirVideosInput), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, config.DirVideosOutput), 0o755))

	s := store.New(filepath.Join(dataDir, config.DirQueueDB, config.TaskDBFileName))
	cfg := config.Cli{MaxVideoSizeGB: 2, MaxConcurrentJobs: 3}
	router := NewRouter(s, cfg, dataDir)
	return httptest.NewServer(router), s, dataDir
}

func multipartUpload(t *testing.T, url, filename string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest("POST", url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthAndRoot(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "healthy", health.Status)

	resp2, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestUploadRejectsBadExtension(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp := multipartUpload(t, srv.URL+"/upload", "notes.txt", []byte("hello"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadCreatesProtectTask(t *testing.T) {
	srv, s, dataDir := newTestServer(t)
	defer srv.Close()

	resp := multipartUpload(t, srv.URL+"/upload?epsilon=0.1&strength=0.8&every_n=5&audio_level=medium", "clip.mp4", []byte("fake video bytes"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	taskID, ok := body["task_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, taskID)

	task, found := s.Get(taskID)
	require.True(t, found)
	require.Equal(t, store.KindProtect, task.Kind)
	require.Equal(t, store.StatusPending, task.Status)
	require.NotNil(t, task.Protect)
	require.InDelta(t, 0.1, task.Protect.Epsilon, 1e-9)
	require.Equal(t, "medium", task.Protect.AudioLevel)

	stored := filepath.Join(dataDir, config.DirVideosInput, task.InputName)
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	require.Equal(t, "fake video bytes", string(data))
	require.True(t, strings.HasSuffix(task.InputName, "_clip.mp4"))
	require.Empty(t, task.UserID)
}

func TestUploadThreadsNotesAndWebhookURL(t *testing.T) {
	srv, s, _ := newTestServer(t)
	defer srv.Close()

	resp := multipartUpload(t, srv.URL+"/upload?notes=batch-7&webhook_url=https%3A%2F%2Fexample.com%2Fhook", "clip.mp4", []byte("x"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	taskID := body["task_id"].(string)

	task, found := s.Get(taskID)
	require.True(t, found)
	require.Equal(t, "batch-7", task.Notes)
	require.Equal(t, "https://example.com/hook", task.WebhookURL)
}

func TestUploadThreadsUserID(t *testing.T) {
	srv, s, _ := newTestServer(t)
	defer srv.Close()

	respA := multipartUpload(t, srv.URL+"/upload?user_id=alice", "clip.mp4", []byte("x"))
	defer respA.Body.Close()
	require.Equal(t, http.StatusOK, respA.StatusCode)
	var bodyA map[string]any
	require.NoError(t, json.NewDecoder(respA.Body).Decode(&bodyA))
	idA := bodyA["task_id"].(string)

	respB := multipartUpload(t, srv.URL+"/upload?user_id=bob", "clip.mp4", []byte("x"))
	defer respB.Body.Close()
	require.Equal(t, http.StatusOK, respB.StatusCode)
	var bodyB map[string]any
	require.NoError(t, json.NewDecoder(respB.Body).Decode(&bodyB))
	idB := bodyB["task_id"].(string)

	taskA, ok := s.Get(idA)
	require.True(t, ok)
	require.Equal(t, "alice", taskA.UserID)

	listResp, err := http.Get(srv.URL + "/tasks?user_id=alice")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var listed []map[string]any
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	require.Equal(t, idA, listed[0]["id"])
	require.NotEqual(t, idA, idB)
}

func TestUploadRejectsMalformedWebhookURL(t *testing.T) {
	srv, s, dataDir := newTestServer(t)
	defer srv.Close()

	resp := multipartUpload(t, srv.URL+"/upload?webhook_url=not-a-url", "clip.mp4", []byte("x"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Empty(t, s.ListAll(nil))
	entries, err := os.ReadDir(filepath.Join(dataDir, config.DirVideosInput))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUploadRejectsOutOfRangeEpsilon(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp := multipartUpload(t, srv.URL+"/upload?epsilon=5.0", "clip.mp4", []byte("x"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompressVideoRequiresTargetSize(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp := multipartUpload(t, srv.URL+"/compress-video", "clip.mp4", []byte("x"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadAtCapacityReturns429(t *testing.T) {
	srv, s, _ := newTestServer(t)
	defer srv.Close()

	for i := 0; i < 3; i++ {
		_, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "x.mp4"})
		require.NoError(t, err)
		_, claimed := s.ClaimNext()
		require.True(t, claimed)
	}

	resp := multipartUpload(t, srv.URL+"/upload", "clip.mp4", []byte("x"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/task/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelPendingTask(t *testing.T) {
	srv, s, _ := newTestServer(t)
	defer srv.Close()

	task, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "x.mp4"})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/cancel/"+task.ID, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, _ := s.Get(task.ID)
	require.Equal(t, store.StatusCancelled, got.Status)
}

func TestCancelTerminalTaskReturns400(t *testing.T) {
	srv, s, _ := newTestServer(t)
	defer srv.Close()

	task, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "x.mp4"})
	require.NoError(t, err)
	_, err = s.Cancel(task.ID)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/cancel/"+task.ID, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadBeforeCompletionReturnsNotFound(t *testing.T) {
	srv, s, _ := newTestServer(t)
	defer srv.Close()

	task, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "x.mp4"})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/download/" + task.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadServesCompletedOutput(t *testing.T) {
	srv, s, dataDir := newTestServer(t)
	defer srv.Close()

	task, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "x.mp4"})
	require.NoError(t, err)

	outPath := filepath.Join(dataDir, config.DirVideosOutput, task.ID+"_x_cleaned.mp4")
	require.NoError(t, os.WriteFile(outPath, []byte("video bytes"), 0o644))

	now := config.Clock.GetTime()
	_, err = s.Update(task.ID, func(tk *store.Task) {
		tk.Status = store.StatusCompleted
		tk.CompletedAt = &now
		tk.OutputName = filepath.Base(outPath)
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/download/" + task.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListTasksFiltersByStatus(t *testing.T) {
	srv, s, _ := newTestServer(t)
	defer srv.Close()

	_, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "a.mp4"})
	require.NoError(t, err)
	t2, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "b.mp4"})
	require.NoError(t, err)
	_, err = s.Cancel(t2.ID)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/tasks?status=CANCELLED")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tasks []TaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
	require.Len(t, tasks, 1)
	require.Equal(t, "CANCELLED", tasks[0].Status)
}

func TestCleanupRemovesOldTerminalTasks(t *testing.T) {
	srv, s, _ := newTestServer(t)
	defer srv.Close()

	task, err := s.Create(&store.Task{Kind: store.KindStripMetadata, InputName: "a.mp4"})
	require.NoError(t, err)
	_, err = s.Cancel(task.ID)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/cleanup?days=0", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body["deleted_tasks"])
}

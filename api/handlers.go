// Package api implements the HTTP surface described in §4.G: a thin
// httprouter layer translating requests into store operations, with the
// admission chain (extension, size, concurrency, param ranges) enforced on
// the upload endpoints before a task is ever created.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/und3rrr/media-cleaner/config"
	"github.com/und3rrr/media-cleaner/errors"
	"github.com/und3rrr/media-cleaner/middleware"
	"github.com/und3rrr/media-cleaner/store"
)

// Server holds the dependencies every handler needs: the shared store and
// the data-dir/config needed to resolve on-disk paths and admission limits.
type Server struct {
	Store    *store.Store
	Cfg      config.Cli
	DataDir  string
	Capacity *middleware.CapacityMiddleware
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errors.WriteHTTPInternalServerError(w, "failed to encode response", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := s.Store.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "media-cleaner",
		"version": config.Version,
		"stats":   stats,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := s.Store.Stats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "healthy",
		QueueSize:  stats.Pending,
		Processing: stats.Processing,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := s.Store.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":                stats,
		"max_concurrent_tasks": s.Cfg.MaxConcurrentJobs,
		"max_video_size_gb":    s.Cfg.MaxVideoSizeGB,
		"task_timeout_hours":   s.Cfg.TaskTimeoutHours,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	task, ok := s.Store.Get(id)
	if !ok {
		errors.WriteHTTPNotFound(w, "task not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var tasks []*store.Task
	switch {
	case q.Get("user_id") != "":
		tasks = s.Store.ListByUser(q.Get("user_id"))
		if len(tasks) > limit {
			tasks = tasks[:limit]
		}
	case q.Get("status") != "":
		status := store.Status(q.Get("status"))
		tasks = s.Store.ListAll(&status)
		if len(tasks) > limit {
			tasks = tasks[:limit]
		}
	default:
		tasks = s.Store.ListAll(nil)
		if len(tasks) > limit {
			tasks = tasks[:limit]
		}
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	task, ok := s.Store.Get(id)
	if !ok {
		errors.WriteHTTPNotFound(w, "task not found", nil)
		return
	}
	if task.Status == store.StatusFailed || task.Status == store.StatusCancelled {
		errors.WriteHTTPBadRequest(w, "task did not complete successfully", nil)
		return
	}
	if task.Status != store.StatusCompleted || task.OutputName == "" {
		errors.WriteHTTPNotFound(w, "output not yet available", nil)
		return
	}

	path := filepath.Join(s.DataDir, config.DirVideosOutput, task.OutputName)
	f, err := os.Open(path)
	if err != nil {
		errors.WriteHTTPNotFound(w, "output file missing", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, task.OutputName, task.CompletedAt.UTC(), f)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	cancelled, err := s.Store.Cancel(id)
	if err != nil {
		errors.WriteHTTPInternalServerError(w, "failed to cancel task", err)
		return
	}
	if !cancelled {
		errors.WriteHTTPBadRequest(w, "task is already terminal or does not exist", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	days := config.DefaultRetentionDays
	if s.Cfg.RetentionDays > 0 {
		days = s.Cfg.RetentionDays
	}
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errors.WriteHTTPBadRequest(w, "days must be a non-negative integer", err)
			return
		}
		days = n
	}

	deleted, err := s.Store.Cleanup(days)
	if err != nil {
		errors.WriteHTTPInternalServerError(w, "cleanup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted_tasks": deleted})
}

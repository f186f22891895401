package api

import (
	"github.com/julienschmidt/httprouter"
	"github.com/und3rrr/media-cleaner/config"
	"github.com/und3rrr/media-cleaner/middleware"
	"github.com/und3rrr/media-cleaner/store"
)

// NewRouter wires every §4.G endpoint through the shared LogRequest/CORS
// middleware. The three upload-triggering endpoints run the concurrency
// check (admission rule 3) from inside their handler, after the extension
// and size checks (rules 1-2) and before param validation (rule 4), so the
// fixed admission order holds even though capacity is cheapest to check
// first.
func NewRouter(s *store.Store, cfg config.Cli, dataDir string) *httprouter.Router {
	capacity := &middleware.CapacityMiddleware{Store: s, MaxConcurrentTasks: cfg.MaxConcurrentJobs}
	srv := &Server{Store: s, Cfg: cfg, DataDir: dataDir, Capacity: capacity}

	wrap := func(h httprouter.Handle) httprouter.Handle {
		return middleware.AllowCORS()(middleware.LogRequest()(h))
	}

	r := httprouter.New()
	r.GET("/", wrap(srv.handleRoot))
	r.GET("/health", wrap(srv.handleHealth))
	r.GET("/stats", wrap(srv.handleStats))

	r.POST("/upload", wrap(srv.handleUpload))
	r.POST("/strip-metadata", wrap(srv.handleStripMetadata))
	r.POST("/compress-video", wrap(srv.handleCompressVideo))

	r.GET("/task/:id", wrap(srv.handleGetTask))
	r.GET("/tasks", wrap(srv.handleListTasks))
	r.GET("/download/:id", wrap(srv.handleDownload))
	r.POST("/cancel/:id", wrap(srv.handleCancel))
	r.POST("/cleanup", wrap(srv.handleCleanup))

	return r
}

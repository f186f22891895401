package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/und3rrr/media-cleaner/config"
	"github.com/und3rrr/media-cleaner/errors"
	"github.com/und3rrr/media-cleaner/log"
	"github.com/und3rrr/media-cleaner/metrics"
	"github.com/und3rrr/media-cleaner/progress"
	"github.com/und3rrr/media-cleaner/store"
)

// maxUploadBytes bounds the size admission rule (§4.G rule 2). One byte past
// this is rejected with 413, before a task is ever created.
func (s *Server) maxUploadBytes() int64 {
	return int64(s.Cfg.MaxVideoSizeGB) * 1024 * 1024 * 1024
}

func hasAllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range config.AllowedVideoExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// admitUpload runs the first two steps of the fixed admission order (§4.G):
// extension, then size. The caller runs rejectAtCapacity (concurrency) and
// then its own param validation afterward, preserving the fixed order.
// It streams the multipart file to disk under a short-uid-prefixed name and
// returns the stored path plus the uid/original name pair the caller needs
// to populate the task record.
func (s *Server) admitUpload(w http.ResponseWriter, r *http.Request) (storedPath, uid, origName string, ok bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		errors.WriteHTTPBadRequest(w, "missing multipart field \"file\"", err)
		return "", "", "", false
	}
	defer file.Close()

	origName = filepath.Base(header.Filename)
	if !hasAllowedExtension(origName) {
		metrics.Metrics.UploadRejected.WithLabelValues("extension").Inc()
		errors.WriteHTTPBadRequest(w, "unsupported format", nil)
		return "", "", "", false
	}

	if header.Size > 0 && header.Size > s.maxUploadBytes() {
		metrics.Metrics.UploadRejected.WithLabelValues("size").Inc()
		errors.WriteHTTPPayloadTooLarge(w, "file exceeds maximum upload size", nil)
		return "", "", "", false
	}

	uid = uuid.New().String()[:8]
	storedPath = filepath.Join(s.DataDir, config.DirVideosInput, uid+"_"+origName)

	if err := streamToDisk(storedPath, file, s.maxUploadBytes()); err != nil {
		if err == errUploadTooLarge {
			metrics.Metrics.UploadRejected.WithLabelValues("size").Inc()
			os.Remove(storedPath)
			errors.WriteHTTPPayloadTooLarge(w, "file exceeds maximum upload size", nil)
			return "", "", "", false
		}
		log.LogNoRequestID("failed writing uploaded file", "err", err)
		os.Remove(storedPath)
		errors.WriteHTTPInternalServerError(w, "failed to store upload", err)
		return "", "", "", false
	}

	return storedPath, uid, origName, true
}

var errUploadTooLarge = fmt.Errorf("upload exceeds configured maximum size")

// streamToDisk copies src to a fresh file at path, hashing the bytes as they
// pass through (so a future integrity check has an MD5/SHA256 on hand without
// a second read) and aborting once limit bytes have been written, since
// multipart.FileHeader.Size is not always populated by every client.
func streamToDisk(path string, src multipart.File, limit int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	hashed := progress.NewReadHasher(src)
	n, err := io.Copy(dst, io.LimitReader(hashed, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return errUploadTooLarge
	}
	metrics.Metrics.UploadBytesTotal.Add(float64(n))
	log.LogNoRequestID("stored upload", "path", path, "bytes", n, "md5", hashed.MD5())
	return nil
}

// parseProtectParams validates the PROTECT query params against §3's ranges,
// applying defaults for any that are omitted (§4.H).
func parseProtectParams(r *http.Request) (*store.ProtectParams, error) {
	p := &store.ProtectParams{
		Epsilon:    config.DefaultEpsilon,
		Strength:   config.DefaultStrength,
		EveryN:     config.DefaultEveryN,
		AudioLevel: config.DefaultAudioLevel,
	}
	q := r.URL.Query()

	if v := q.Get("epsilon"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0.01 || f > 0.5 {
			return nil, fmt.Errorf("epsilon must be in [0.01, 0.5], got %q", v)
		}
		p.Epsilon = f
	}
	if v := q.Get("strength"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0.1 || f > 2.0 {
			return nil, fmt.Errorf("strength must be in [0.1, 2.0], got %q", v)
		}
		p.Strength = f
	}
	if v := q.Get("every_n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 30 {
			return nil, fmt.Errorf("every_n must be in [1, 30], got %q", v)
		}
		p.EveryN = n
	}
	if v := q.Get("audio_level"); v != "" {
		if _, ok := config.AudioLevelStrength[v]; !ok {
			return nil, fmt.Errorf("audio_level must be one of none/weak/medium/strong, got %q", v)
		}
		p.AudioLevel = v
	}
	return p, nil
}

func parseCompressParams(r *http.Request) (*store.CompressParams, error) {
	v := r.URL.Query().Get("target_size_mb")
	if v == "" {
		return nil, fmt.Errorf("target_size_mb is required")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || f > 10_000 {
		return nil, fmt.Errorf("target_size_mb must be in (0, 10000], got %q", v)
	}
	return &store.CompressParams{TargetMB: f}, nil
}

// rejectAtCapacity applies admission rule 3 (§4.G) once the extension and
// size checks have already passed. On rejection it removes the just-stored
// upload so no file lingers in videos_input for a task that was never
// created.
func (s *Server) rejectAtCapacity(w http.ResponseWriter, storedPath string) bool {
	if s.Capacity != nil && !s.Capacity.Allow() {
		os.Remove(storedPath)
		errors.WriteHTTPServerBusy(w, "server is at capacity, try again shortly", nil)
		return true
	}
	return false
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	storedPath, uid, origName, ok := s.admitUpload(w, r)
	if !ok {
		return
	}
	if s.rejectAtCapacity(w, storedPath) {
		return
	}

	params, perr := parseProtectParams(r)
	if perr != nil {
		os.Remove(storedPath)
		errors.WriteHTTPBadRequest(w, perr.Error(), perr)
		return
	}
	if err := validateWebhookURL(r); err != nil {
		os.Remove(storedPath)
		errors.WriteHTTPBadRequest(w, err.Error(), err)
		return
	}

	task, err := s.Store.Create(applyOptionalMeta(&store.Task{
		InputName: uid + "_" + origName,
		Kind:      store.KindProtect,
		Protect:   params,
	}, r))
	if err != nil {
		errors.WriteHTTPInternalServerError(w, "failed to create task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": task.ID, "task": toTaskResponse(task)})
}

// applyOptionalMeta threads the opaque notes metadata (§3), the completion
// webhook_url (§9 supplemented feature) and the caller-supplied user_id
// (§4.G, filtered by ListByUser) through from the upload query string,
// without disturbing the admission chain that ran before it. user_id is
// whatever the caller passes, or empty if they don't; it has nothing to do
// with the uid prefix the file was stored under.
func applyOptionalMeta(t *store.Task, r *http.Request) *store.Task {
	q := r.URL.Query()
	t.Notes = q.Get("notes")
	t.WebhookURL = q.Get("webhook_url")
	t.UserID = q.Get("user_id")
	return t
}

// validateWebhookURL enforces the admission-time URL check on webhook_url
// (supplemented feature, §9): if present it must parse as an absolute
// http(s) URL, otherwise the caller meant something other than a real
// callback endpoint and the task should never be created.
func validateWebhookURL(r *http.Request) error {
	raw := r.URL.Query().Get("webhook_url")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webhook_url must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

func (s *Server) handleStripMetadata(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	storedPath, uid, origName, ok := s.admitUpload(w, r)
	if !ok {
		return
	}
	if s.rejectAtCapacity(w, storedPath) {
		return
	}
	if err := validateWebhookURL(r); err != nil {
		os.Remove(storedPath)
		errors.WriteHTTPBadRequest(w, err.Error(), err)
		return
	}

	task, err := s.Store.Create(applyOptionalMeta(&store.Task{
		InputName: uid + "_" + origName,
		Kind:      store.KindStripMetadata,
	}, r))
	if err != nil {
		errors.WriteHTTPInternalServerError(w, "failed to create task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": task.ID})
}

func (s *Server) handleCompressVideo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	storedPath, uid, origName, ok := s.admitUpload(w, r)
	if !ok {
		return
	}
	if s.rejectAtCapacity(w, storedPath) {
		return
	}

	params, perr := parseCompressParams(r)
	if perr != nil {
		os.Remove(storedPath)
		errors.WriteHTTPBadRequest(w, perr.Error(), perr)
		return
	}
	if err := validateWebhookURL(r); err != nil {
		os.Remove(storedPath)
		errors.WriteHTTPBadRequest(w, err.Error(), err)
		return
	}

	task, err := s.Store.Create(applyOptionalMeta(&store.Task{
		InputName: uid + "_" + origName,
		Kind:      store.KindCompress,
		Compress:  params,
	}, r))
	if err != nil {
		errors.WriteHTTPInternalServerError(w, "failed to create task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": task.ID, "target_size_mb": params.TargetMB})
}

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/und3rrr/media-cleaner/log"
)

type APIError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHttpError(w http.ResponseWriter, msg string, status int, err error) APIError {
	w.WriteHeader(status)

	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": errorDetail}); err != nil {
		log.LogNoRequestID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}
	return APIError{msg, status, err}
}

// HTTP Errors
func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusBadRequest, err)
}

func WriteHTTPPayloadTooLarge(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusRequestEntityTooLarge, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusNotFound, err)
}

func WriteHTTPServerBusy(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusTooManyRequests, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusInternalServerError, err)
}

// ToolchainFailure, AudioIO, AudioEmpty and FrameIO are not HTTP-facing kinds:
// they only ever occur inside the pipeline runner, long after admission has
// accepted the task, so they are recorded on the task record's error_message
// rather than written to a ResponseWriter. See pipeline.Runner.

type ToolchainError struct {
	Msg    string
	Stderr string
}

func (e *ToolchainError) Error() string {
	if e.Stderr == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Stderr)
}

func NewToolchainFailure(msg, stderrExcerpt string) error {
	return &ToolchainError{Msg: msg, Stderr: stderrExcerpt}
}

var (
	ErrAudioIO    = errors.New("audio stream could not be read or written")
	ErrAudioEmpty = errors.New("input has no audio stream")
	ErrFrameIO    = errors.New("frame could not be decoded or encoded")
)

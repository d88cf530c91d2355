package api

import (
	"errors"
	"net/http"

	"github.com/FrezCirno/CloudStorageSystem/internal/upload"
)

// uploadErrStatus maps the upload pipeline's sentinel errors to HTTP
// statuses. 409 and 503 are the retry-worthy ones.
func uploadErrStatus(err error) int {
	switch {
	case errors.Is(err, upload.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, upload.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, upload.ErrIncomplete):
		return http.StatusPreconditionFailed
	case errors.Is(err, upload.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, upload.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// uploadErrMessage keeps internal detail out of responses for server
// side failures.
func uploadErrMessage(err error) string {
	status := uploadErrStatus(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		return "Internal server error"
	}

	return err.Error()
}

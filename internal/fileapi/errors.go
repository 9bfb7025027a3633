package fileapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrMissingUploadID is returned when the initiate response carries no uploadId.
var ErrMissingUploadID = errors.New("initiate response has no uploadId")

// StatusError is a non-2xx response from the file API.
type StatusError struct {
	Operation  string // The operation that failed (e.g. "initiate", "upload_part")
	StatusCode int    // HTTP status code
	Body       string // Beginning of the response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed with HTTP %d", e.Operation, e.StatusCode)
	}

	return fmt.Sprintf("%s failed with HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

func newStatusError(op string, resp *http.Response) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &StatusError{
		Operation:  op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(b)),
	}
}

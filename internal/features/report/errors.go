package report

import "errors"

var (
	ErrReportNotFound = errors.New("report not found")
	// ErrPermissionDenied is surfaced as a result message, never an HTTP 500
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

package report

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeGenerateReport is the queue task that regenerates a report export and
// writes it to the cache.
const TypeGenerateReport = "report:generate"

type GeneratePayload struct {
	ReportID string `json:"report_id"`
	UserID   string `json:"user_id"`
	Format   Format `json:"format"`
}

func generateTaskID(reportID string, format Format) string {
	return fmt.Sprintf("%s:%s:%s", TypeGenerateReport, reportID, format)
}

// NewGenerateTask builds the regeneration task. The deterministic task id
// dedupes concurrent warm requests for the same report and format and lets
// the status endpoint find the job.
func NewGenerateTask(reportID, userID string, format Format) (*asynq.Task, error) {
	payload, err := json.Marshal(GeneratePayload{ReportID: reportID, UserID: userID, Format: format})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerateReport, payload,
		asynq.TaskID(generateTaskID(reportID, format)),
		asynq.Retention(time.Hour),
	), nil
}

// TaskHandler consumes report queue tasks.
type TaskHandler struct {
	Service ReportService
	Logger  *zap.Logger
}

func NewTaskHandler(service ReportService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{Service: service, Logger: logger}
}

// Register binds handlers onto the worker mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeGenerateReport, h.HandleGenerate)
}

func (h *TaskHandler) HandleGenerate(ctx context.Context, t *asynq.Task) error {
	var p GeneratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}

	key, err := h.Service.GenerateToCache(ctx, p.ReportID, p.UserID, p.Format)
	if errors.Is(err, ErrReportNotFound) {
		// The report was deleted after enqueue; retrying cannot succeed
		return fmt.Errorf("report %s no longer exists: %w", p.ReportID, asynq.SkipRetry)
	}
	if errors.Is(err, ErrPermissionDenied) {
		return fmt.Errorf("report %s denied for user %s: %w", p.ReportID, p.UserID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("report %s generation failed: %w", p.ReportID, err)
	}

	h.Logger.Info("report export cached",
		zap.String("report", p.ReportID),
		zap.String("format", string(p.Format)),
		zap.String("key", key))
	return nil
}

// wrapInZip stores a single finished payload as the lone entry of a zip
// archive.
func wrapInZip(entryName string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entry, err := zw.Create(entryName)
	if err != nil {
		return nil, err
	}
	if _, err := entry.Write(content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

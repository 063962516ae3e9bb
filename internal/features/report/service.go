package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-reports/internal/cache"
	common_models "go-reports/internal/common/models"
	"go-reports/internal/config"
	"go-reports/internal/features/audit"
	"go-reports/internal/features/record"
	"go-reports/pkg/utils"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ReportService interface {
	CreateReport(ctx context.Context, r *Report, user *utils.UserClaims) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, limit, offset int64) ([]Report, error)
	UpdateReport(ctx context.Context, r *Report, user *utils.UserClaims) error
	DeleteReport(ctx context.Context, id string) error
	Duplicate(ctx context.Context, id string, user *utils.UserClaims) (*Report, error)
	ToggleStar(ctx context.Context, id, userID string) (bool, error)

	// Run evaluates a stored report; preview caps output at PreviewLimit.
	Run(ctx context.Context, id string, user *utils.UserClaims, preview bool) (*ReportResult, []string, error)
	// RequestExport is the synchronous download path with cache warming.
	RequestExport(ctx context.Context, id string, user *utils.UserClaims, format Format) (*Payload, error)
	// EnqueueExport schedules background generation without computing inline.
	EnqueueExport(ctx context.Context, id, userID string, format Format) error
	// GenerateToCache is the asynchronous path; it returns the cache key.
	GenerateToCache(ctx context.Context, id, userID string, format Format) (string, error)
	// ExportStatus reports the queue state of a pending generation job.
	ExportStatus(ctx context.Context, id string, format Format) (string, error)
	// ExportSelection exports chosen records with string-form field specs.
	ExportSelection(ctx context.Context, entityName string, ids []string, specs []string, user *utils.UserClaims, format Format) (*Payload, error)
}

// UserResolver rebuilds claims for background jobs. Satisfied by the user
// service.
type UserResolver interface {
	ClaimsFor(ctx context.Context, id string) (*utils.UserClaims, error)
}

type ReportServiceImpl struct {
	Repo      ReportRepository
	Records   record.RecordService
	Evaluator *Evaluator
	Exporter  *Exporter
	Cache     cache.Store
	Queue     *asynq.Client
	Inspector *asynq.Inspector
	Users     UserResolver
	Audit     audit.AuditService
	Config    *config.Config
	Logger    *zap.Logger
}

func NewReportService(
	repo ReportRepository,
	records record.RecordService,
	evaluator *Evaluator,
	exporter *Exporter,
	store cache.Store,
	queue *asynq.Client,
	inspector *asynq.Inspector,
	users UserResolver,
	auditService audit.AuditService,
	cfg *config.Config,
	logger *zap.Logger,
) ReportService {
	return &ReportServiceImpl{
		Repo:      repo,
		Records:   records,
		Evaluator: evaluator,
		Exporter:  exporter,
		Cache:     store,
		Queue:     queue,
		Inspector: inspector,
		Users:     users,
		Audit:     auditService,
		Config:    cfg,
		Logger:    logger,
	}
}

func (s *ReportServiceImpl) cacheTTL() time.Duration {
	if s.Config.ReportCacheTTL <= 0 {
		return 24 * time.Hour
	}
	return s.Config.ReportCacheTTL
}

// CacheKey is the payload's cache address: "report_{id}_{format}", with a
// ".zip" suffix once the payload has been archived.
func CacheKey(id string, format Format) string {
	return fmt.Sprintf("report_%s_%s", id, format)
}

func (s *ReportServiceImpl) CreateReport(ctx context.Context, r *Report, user *utils.UserClaims) error {
	if r.Name == "" || r.RootEntity == "" {
		return errors.New("report name and root entity are required")
	}
	if _, err := s.Records.Queryset(ctx, r.RootEntity, nil, false); err != nil {
		return err
	}
	if r.Slug == "" {
		r.Slug = utils.Slugify(r.Name)
	}
	if user != nil {
		r.CreatedBy = user.UserID
		r.ModifiedBy = user.UserID
	}
	normalizePositions(r)

	if err := s.Repo.Create(ctx, r); err != nil {
		return err
	}
	if err := s.Audit.LogChange(ctx, common_models.AuditActionCreate, "reports", r.ID.Hex(), nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return nil
}

// normalizePositions assigns sequential positions to fields missing one so
// the row tuple stays dense.
func normalizePositions(r *Report) {
	seen := make(map[int]bool)
	for i := range r.DisplayFields {
		df := &r.DisplayFields[i]
		if df.FieldType == "" {
			df.FieldType = FieldTypeField
		}
		if df.Position == 0 && (i != 0 || seen[0]) {
			df.Position = i
		}
		seen[df.Position] = true
	}
}

func (s *ReportServiceImpl) GetReport(ctx context.Context, id string) (*Report, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrReportNotFound
	}
	return s.Repo.FindByID(ctx, oid)
}

func (s *ReportServiceImpl) ListReports(ctx context.Context, limit, offset int64) ([]Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.Repo.List(ctx, bson.M{}, limit, offset)
}

func (s *ReportServiceImpl) UpdateReport(ctx context.Context, r *Report, user *utils.UserClaims) error {
	existing, err := s.Repo.FindByID(ctx, r.ID)
	if err != nil {
		return err
	}
	r.CreatedBy = existing.CreatedBy
	r.CreatedAt = existing.CreatedAt
	r.StarredBy = existing.StarredBy
	if user != nil {
		r.ModifiedBy = user.UserID
	}
	if r.Slug == "" {
		r.Slug = utils.Slugify(r.Name)
	}
	normalizePositions(r)

	if err := s.Repo.Update(ctx, r); err != nil {
		return err
	}
	if err := s.Audit.LogChange(ctx, common_models.AuditActionUpdate, "reports", r.ID.Hex(), nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return nil
}

func (s *ReportServiceImpl) DeleteReport(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrReportNotFound
	}
	if err := s.Repo.Delete(ctx, oid); err != nil {
		return err
	}
	if err := s.Audit.LogChange(ctx, common_models.AuditActionDelete, "reports", id, nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return nil
}

func (s *ReportServiceImpl) Duplicate(ctx context.Context, id string, user *utils.UserClaims) (*Report, error) {
	source, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	copied := *source
	copied.ID = primitive.NilObjectID
	copied.Name = source.Name + " (copy)"
	copied.Slug = utils.Slugify(copied.Name)
	copied.StarredBy = nil
	copied.DisplayFields = append([]DisplayField(nil), source.DisplayFields...)
	copied.FilterFields = append([]FilterField(nil), source.FilterFields...)
	if user != nil {
		copied.CreatedBy = user.UserID
		copied.ModifiedBy = user.UserID
	}

	if err := s.Repo.Create(ctx, &copied); err != nil {
		return nil, err
	}
	if err := s.Audit.LogChange(ctx, common_models.AuditActionCreate, "reports", copied.ID.Hex(), nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return &copied, nil
}

func (s *ReportServiceImpl) ToggleStar(ctx context.Context, id, userID string) (bool, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return false, err
	}
	starred := !r.Starred(userID)
	if err := s.Repo.ToggleStar(ctx, r.ID, userID, starred); err != nil {
		return false, err
	}
	return starred, nil
}

func (s *ReportServiceImpl) queryset(ctx context.Context, r *Report) (record.Queryset, error) {
	var predicates []record.Predicate
	for _, ff := range r.FilterFields {
		if ff.InProcess() {
			continue
		}
		predicates = append(predicates, record.Predicate{
			Filter: common_models.Filter{
				Field:    ff.QueryKey(),
				Operator: ff.Operator,
				Value:    ff.Value,
			},
			Exclude: ff.Exclude,
		})
	}
	return s.Records.Queryset(ctx, r.RootEntity, predicates, r.Distinct)
}

func (s *ReportServiceImpl) Run(ctx context.Context, id string, user *utils.UserClaims, preview bool) (*ReportResult, []string, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.run(ctx, r, user, preview)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Audit.LogChange(ctx, common_models.AuditActionReport, "reports", id, nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return result, Header(r.DisplayFields), nil
}

func (s *ReportServiceImpl) run(ctx context.Context, r *Report, user *utils.UserClaims, preview bool) (*ReportResult, error) {
	qs, err := s.queryset(ctx, r)
	if err != nil {
		return nil, err
	}
	return s.Evaluator.Evaluate(ctx, qs, r.DisplayFields, user, r.FilterFields, preview)
}

// lookupCache checks the archived key first, then the plain key.
func (s *ReportServiceImpl) lookupCache(ctx context.Context, r *Report, format Format) (*Payload, bool, error) {
	key := CacheKey(r.ID.Hex(), format)

	if content, ok, err := s.Cache.Get(ctx, key+".zip"); err != nil {
		return nil, false, err
	} else if ok {
		return &Payload{Content: content, ContentType: contentTypeZip, Filename: s.Exporter.Filename(r.Name, "zip")}, true, nil
	}

	content, ok, err := s.Cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	contentType := contentTypeXLSX
	if format == FormatCSV {
		contentType = contentTypeCSV
	}
	return &Payload{Content: content, ContentType: contentType, Filename: s.Exporter.Filename(r.Name, string(format))}, true, nil
}

func (s *ReportServiceImpl) RequestExport(ctx context.Context, id string, user *utils.UserClaims, format Format) (*Payload, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, ok, err := s.lookupCache(ctx, r, format); err != nil {
		s.Logger.Warn("cache lookup failed", zap.String("report", id), zap.Error(err))
	} else if ok {
		return payload, nil
	}

	result, err := s.run(ctx, r, user, false)
	if err != nil {
		return nil, err
	}
	if result.Message == "Permission Denied" {
		return nil, ErrPermissionDenied
	}

	payload, err := s.Exporter.ListToResponse(result.Rows, format, r.Name, Header(r.DisplayFields), nil)
	if err != nil {
		return nil, err
	}

	key := CacheKey(id, format)
	if payload.ContentType == contentTypeZip {
		key += ".zip"
	}
	if err := s.Cache.Set(ctx, key, payload.Content, s.cacheTTL()); err != nil {
		s.Logger.Warn("failed to cache export", zap.String("key", key), zap.Error(err))
	}

	// Warm the cache through the canonical async path too. The duplicate
	// computation is idempotent: same key, last write wins.
	userID := ""
	if user != nil {
		userID = user.UserID
	}
	s.enqueueGenerate(ctx, id, userID, format)

	if err := s.Audit.LogChange(ctx, common_models.AuditActionExport, "reports", id, nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return payload, nil
}

func (s *ReportServiceImpl) EnqueueExport(ctx context.Context, id, userID string, format Format) error {
	if _, err := s.GetReport(ctx, id); err != nil {
		return err
	}
	s.enqueueGenerate(ctx, id, userID, format)
	return nil
}

func (s *ReportServiceImpl) enqueueGenerate(ctx context.Context, id, userID string, format Format) {
	task, err := NewGenerateTask(id, userID, format)
	if err != nil {
		s.Logger.Warn("failed to build generate task", zap.Error(err))
		return
	}
	if _, err := s.Queue.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		s.Logger.Warn("failed to enqueue generate task", zap.String("report", id), zap.Error(err))
	}
}

func (s *ReportServiceImpl) GenerateToCache(ctx context.Context, id, userID string, format Format) (string, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return "", err
	}

	var user *utils.UserClaims
	if userID != "" {
		user, err = s.Users.ClaimsFor(ctx, userID)
		if err != nil {
			s.Logger.Warn("failed to resolve job user, evaluating unauthenticated",
				zap.String("user", userID), zap.Error(err))
		}
	}

	result, err := s.run(ctx, r, user, false)
	if err != nil {
		return "", err
	}
	if result.Message == "Permission Denied" {
		return "", ErrPermissionDenied
	}

	payload, err := s.Exporter.ListToResponse(result.Rows, format, r.Name, Header(r.DisplayFields), nil)
	if err != nil {
		return "", err
	}

	// The async path always archives so the link stays a single download
	content := payload.Content
	key := CacheKey(id, format) + ".zip"
	if payload.ContentType != contentTypeZip {
		content, err = wrapInZip(payload.Filename, payload.Content)
		if err != nil {
			return "", err
		}
	}

	if err := s.Cache.Set(ctx, key, content, s.cacheTTL()); err != nil {
		return "", err
	}
	return key, nil
}

func (s *ReportServiceImpl) ExportStatus(ctx context.Context, id string, format Format) (string, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return "", err
	}

	if ok, err := s.Cache.Contains(ctx, CacheKey(r.ID.Hex(), format)+".zip"); err == nil && ok {
		return "done", nil
	}
	if ok, err := s.Cache.Contains(ctx, CacheKey(r.ID.Hex(), format)); err == nil && ok {
		return "done", nil
	}

	info, err := s.Inspector.GetTaskInfo("default", generateTaskID(id, format))
	if err != nil {
		return "unknown", nil
	}
	return info.State.String(), nil
}

func (s *ReportServiceImpl) ExportSelection(ctx context.Context, entityName string, ids []string, specs []string, user *utils.UserClaims, format Format) (*Payload, error) {
	fields, err := ResolveDisplayFields(ctx, s.Evaluator.Introspector, entityName, specs)
	if err != nil {
		return nil, err
	}

	predicates := []record.Predicate{{
		Filter: common_models.Filter{Field: record.PKKey, Operator: "in", Value: objectIDs(ids)},
	}}
	qs, err := s.Records.Queryset(ctx, entityName, predicates, false)
	if err != nil {
		return nil, err
	}

	result, err := s.Evaluator.Evaluate(ctx, qs, fields, user, nil, false)
	if err != nil {
		return nil, err
	}
	if result.Message == "Permission Denied" {
		return nil, ErrPermissionDenied
	}

	if err := s.Audit.LogChange(ctx, common_models.AuditActionExport, entityName, "", nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return s.Exporter.ListToResponse(result.Rows, format, entityName, Header(fields), nil)
}

func objectIDs(ids []string) []interface{} {
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

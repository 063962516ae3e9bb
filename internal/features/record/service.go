package record

import (
	"context"
	"errors"
	"fmt"
	"strings"

	common_models "go-reports/internal/common/models"
	"go-reports/internal/features/audit"
	"go-reports/internal/features/entity"
	"go-reports/pkg/condition"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

type RecordService interface {
	CreateRecord(ctx context.Context, entityName string, values map[string]interface{}) (string, error)
	UpdateRecord(ctx context.Context, entityName, id string, values map[string]interface{}) error
	DeleteRecord(ctx context.Context, entityName, id string) error
	GetRecord(ctx context.Context, entityName, id string) (map[string]interface{}, error)
	ListRecords(ctx context.Context, entityName string, limit, offset int64) ([]map[string]interface{}, error)
	SetCustomValue(ctx context.Context, entityName, id, field string, value interface{}) error

	// Queryset opens a filtered view for the report engine.
	Queryset(ctx context.Context, entityName string, predicates []Predicate, distinct bool) (Queryset, error)
}

type RecordServiceImpl struct {
	Repo         RecordRepository
	Introspector entity.Introspector
	Engine       *condition.Engine
	Audit        audit.AuditService
	Logger       *zap.Logger
}

func NewRecordService(repo RecordRepository, introspector entity.Introspector, engine *condition.Engine, auditService audit.AuditService, logger *zap.Logger) RecordService {
	return &RecordServiceImpl{
		Repo:         repo,
		Introspector: introspector,
		Engine:       engine,
		Audit:        auditService,
		Logger:       logger,
	}
}

// validateValues checks incoming values against the schema: unknown keys,
// reserved names, and writes to computed fields are rejected.
func (s *RecordServiceImpl) validateValues(e *entity.Entity, values map[string]interface{}) error {
	for key := range values {
		if strings.HasPrefix(key, "_") {
			return fmt.Errorf("field name %q is reserved", key)
		}
		field := e.FieldByName(key)
		if field == nil {
			return fmt.Errorf("%w: %s has no field %q", entity.ErrUnknownField, e.Name, key)
		}
		switch field.Kind {
		case entity.KindProperty:
			return fmt.Errorf("field %q is computed and cannot be written", key)
		case entity.KindCustom:
			return fmt.Errorf("field %q is a custom field, use the custom value endpoint", key)
		}
	}
	return nil
}

func (s *RecordServiceImpl) CreateRecord(ctx context.Context, entityName string, values map[string]interface{}) (string, error) {
	e, err := s.Introspector.GetEntity(ctx, entityName)
	if err != nil {
		return "", err
	}
	if err := s.validateValues(e, values); err != nil {
		return "", err
	}
	for _, field := range e.DirectFields() {
		if field.Required {
			if v, ok := values[field.Name]; !ok || v == nil {
				return "", fmt.Errorf("field %q is required", field.Name)
			}
		}
	}

	id, err := s.Repo.Insert(ctx, entityName, values)
	if err != nil {
		s.Logger.Error("failed to insert record", zap.String("entity", entityName), zap.Error(err))
		return "", err
	}

	if err := s.Audit.LogChange(ctx, common_models.AuditActionCreate, entityName, id.Hex(), nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return id.Hex(), nil
}

func (s *RecordServiceImpl) UpdateRecord(ctx context.Context, entityName, id string, values map[string]interface{}) error {
	e, err := s.Introspector.GetEntity(ctx, entityName)
	if err != nil {
		return err
	}
	if err := s.validateValues(e, values); err != nil {
		return err
	}

	oid, err := toObjectID(id)
	if err != nil {
		return errors.New("invalid record id")
	}

	before, err := s.Repo.FindByID(ctx, entityName, oid)
	if err != nil {
		return err
	}

	if err := s.Repo.Update(ctx, entityName, oid, values); err != nil {
		return err
	}

	changes := make(map[string]common_models.Change)
	for k, v := range values {
		changes[k] = common_models.Change{Old: before[k], New: v}
	}
	if err := s.Audit.LogChange(ctx, common_models.AuditActionUpdate, entityName, id, changes); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return nil
}

func (s *RecordServiceImpl) DeleteRecord(ctx context.Context, entityName, id string) error {
	if _, err := s.Introspector.GetEntity(ctx, entityName); err != nil {
		return err
	}
	oid, err := toObjectID(id)
	if err != nil {
		return errors.New("invalid record id")
	}
	if err := s.Repo.SoftDelete(ctx, entityName, oid); err != nil {
		return err
	}
	if err := s.Audit.LogChange(ctx, common_models.AuditActionDelete, entityName, id, nil); err != nil {
		s.Logger.Warn("failed to write audit log", zap.Error(err))
	}
	return nil
}

func (s *RecordServiceImpl) GetRecord(ctx context.Context, entityName, id string) (map[string]interface{}, error) {
	if _, err := s.Introspector.GetEntity(ctx, entityName); err != nil {
		return nil, err
	}
	oid, err := toObjectID(id)
	if err != nil {
		return nil, errors.New("invalid record id")
	}
	doc, err := s.Repo.FindByID(ctx, entityName, oid)
	if err != nil {
		return nil, err
	}
	return presentDoc(doc), nil
}

func (s *RecordServiceImpl) ListRecords(ctx context.Context, entityName string, limit, offset int64) ([]map[string]interface{}, error) {
	if _, err := s.Introspector.GetEntity(ctx, entityName); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	docs, err := s.Repo.List(ctx, entityName, bson.M{}, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		out = append(out, presentDoc(doc))
	}
	return out, nil
}

func (s *RecordServiceImpl) SetCustomValue(ctx context.Context, entityName, id, field string, value interface{}) error {
	e, err := s.Introspector.GetEntity(ctx, entityName)
	if err != nil {
		return err
	}
	f := e.FieldByName(field)
	if f == nil || f.Kind != entity.KindCustom {
		return fmt.Errorf("%w: %s has no custom field %q", entity.ErrUnknownField, entityName, field)
	}
	oid, err := toObjectID(id)
	if err != nil {
		return errors.New("invalid record id")
	}
	if _, err := s.Repo.FindByID(ctx, entityName, oid); err != nil {
		return err
	}
	return s.Repo.SetCustomValue(ctx, entityName, oid, field, value)
}

func (s *RecordServiceImpl) Queryset(ctx context.Context, entityName string, predicates []Predicate, distinct bool) (Queryset, error) {
	e, err := s.Introspector.GetEntity(ctx, entityName)
	if err != nil {
		return nil, err
	}
	return &MongoQueryset{
		repo:         s.Repo,
		introspector: s.Introspector,
		engine:       s.Engine,
		root:         e,
		predicates:   predicates,
		distinct:     distinct,
	}, nil
}

// presentDoc maps storage keys to API keys: _id becomes id, bookkeeping
// fields are hidden.
func presentDoc(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch k {
		case "_id":
			out["id"] = condition.Normalize(v)
		case keyDeleted:
		case keyCreatedAt:
			out["created_at"] = condition.Normalize(v)
		case keyUpdatedAt:
			out["updated_at"] = condition.Normalize(v)
		default:
			out[k] = condition.Normalize(v)
		}
	}
	return out
}

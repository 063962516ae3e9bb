package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// PathSeparator joins relation segments in display-field paths,
// e.g. "customer__address".
const PathSeparator = "__"

// SplitPath breaks a dotted relation path into its segments,
// tolerating trailing separators.
func SplitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, PathSeparator) {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// FieldsInfo is the result of resolving a relation path: the target entity's
// fields bucketed by kind, plus its access-control namespace.
type FieldsInfo struct {
	Entity       *Entity
	Fields       []EntityField
	Properties   []EntityField
	CustomFields []EntityField
	Relations    []EntityField
	Namespace    string
	Path         string
	PathVerbose  string
}

// Introspector resolves entity metadata for the report engine. Pure reads,
// no side effects.
type Introspector interface {
	GetEntity(ctx context.Context, name string) (*Entity, error)
	ResolveFields(ctx context.Context, entityName, path string) (*FieldsInfo, error)
}

type EntityService interface {
	Introspector

	CreateEntity(ctx context.Context, entity *Entity) error
	ListEntities(ctx context.Context) ([]Entity, error)
	UpdateEntity(ctx context.Context, entity *Entity) error
	DeleteEntity(ctx context.Context, name string) error
}

type EntityServiceImpl struct {
	Repo   EntityRepository
	Logger *zap.Logger
}

func NewEntityService(repo EntityRepository, logger *zap.Logger) EntityService {
	return &EntityServiceImpl{Repo: repo, Logger: logger}
}

func (s *EntityServiceImpl) CreateEntity(ctx context.Context, e *Entity) error {
	if e.Name == "" || e.Label == "" {
		return errors.New("entity name and label are required")
	}
	if e.Namespace == "" {
		e.Namespace = e.Name
	}

	if _, err := s.Repo.FindByName(ctx, e.Name); err == nil {
		return errors.New("entity with this name already exists")
	}

	for i := range e.Fields {
		if e.Fields[i].Kind == "" {
			e.Fields[i].Kind = KindField
		}
	}

	return s.Repo.Create(ctx, e)
}

func (s *EntityServiceImpl) GetEntity(ctx context.Context, name string) (*Entity, error) {
	return s.Repo.FindByName(ctx, name)
}

func (s *EntityServiceImpl) ListEntities(ctx context.Context) ([]Entity, error) {
	return s.Repo.List(ctx)
}

func (s *EntityServiceImpl) UpdateEntity(ctx context.Context, e *Entity) error {
	existing, err := s.Repo.FindByName(ctx, e.Name)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return errors.New("system entities cannot be modified")
	}
	return s.Repo.Update(ctx, e)
}

func (s *EntityServiceImpl) DeleteEntity(ctx context.Context, name string) error {
	existing, err := s.Repo.FindByName(ctx, name)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return errors.New("system entities cannot be deleted")
	}
	return s.Repo.Delete(ctx, name)
}

// ResolveFields walks a relation path from the root entity and returns the
// target entity's fields bucketed by kind. Each intermediate segment must
// name a relation field; anything else is an invalid path.
func (s *EntityServiceImpl) ResolveFields(ctx context.Context, entityName, path string) (*FieldsInfo, error) {
	current, err := s.Repo.FindByName(ctx, entityName)
	if err != nil {
		return nil, err
	}

	var verbose []string
	for _, segment := range SplitPath(path) {
		field := current.FieldByName(segment)
		if field == nil {
			return nil, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, current.Name, segment)
		}
		if field.Kind != KindRelation || field.Relation == nil {
			return nil, fmt.Errorf("%w: %s.%s is not a relation", ErrInvalidPath, current.Name, segment)
		}

		// Many-to-many relations are displayed through their reverse accessor
		if field.Relation.ManyToMany && field.Relation.ReverseName != "" {
			verbose = append(verbose, field.Relation.ReverseName)
		} else {
			verbose = append(verbose, field.Name)
		}

		next, err := s.Repo.FindByName(ctx, field.Relation.Entity)
		if err != nil {
			return nil, fmt.Errorf("relation %s.%s: %w", current.Name, segment, err)
		}
		current = next
	}

	return &FieldsInfo{
		Entity:       current,
		Fields:       current.DirectFields(),
		Properties:   current.Properties(),
		CustomFields: current.CustomFields(),
		Relations:    current.Relations(),
		Namespace:    current.Namespace,
		Path:         path,
		PathVerbose:  strings.Join(verbose, "::"),
	}, nil
}

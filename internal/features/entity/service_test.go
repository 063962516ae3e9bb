package entity

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type memRepo struct {
	entities map[string]*Entity
}

func (r *memRepo) Create(ctx context.Context, e *Entity) error {
	r.entities[e.Name] = e
	return nil
}
func (r *memRepo) FindByName(ctx context.Context, name string) (*Entity, error) {
	if e, ok := r.entities[name]; ok {
		return e, nil
	}
	return nil, ErrEntityNotFound
}
func (r *memRepo) List(ctx context.Context) ([]Entity, error) { return nil, nil }
func (r *memRepo) Update(ctx context.Context, e *Entity) error {
	r.entities[e.Name] = e
	return nil
}
func (r *memRepo) Delete(ctx context.Context, name string) error {
	delete(r.entities, name)
	return nil
}

func newTestService() *EntityServiceImpl {
	repo := &memRepo{entities: map[string]*Entity{
		"order": {
			Name:      "order",
			Label:     "Order",
			Namespace: "sales",
			Fields: []EntityField{
				{Name: "total", Kind: KindField, Type: TypeNumber},
				{Name: "margin", Kind: KindProperty, Expression: "value := record.total"},
				{Name: "customer", Kind: KindRelation, Relation: &RelationDef{Entity: "customer"}},
				{Name: "tags", Kind: KindRelation, Relation: &RelationDef{Entity: "tag", ManyToMany: true, ReverseName: "orders"}},
			},
		},
		"customer": {
			Name:      "customer",
			Label:     "Customer",
			Namespace: "crm",
			Fields: []EntityField{
				{Name: "name", Kind: KindField, Type: TypeText},
				{Name: "segment", Kind: KindCustom},
				{Name: "address", Kind: KindRelation, Relation: &RelationDef{Entity: "address"}},
			},
		},
		"address": {
			Name:      "address",
			Label:     "Address",
			Namespace: "crm",
			Fields: []EntityField{
				{Name: "city", Kind: KindField, Type: TypeText},
			},
		},
		"tag": {
			Name:      "tag",
			Label:     "Tag",
			Namespace: "sales",
			Fields: []EntityField{
				{Name: "label", Kind: KindField, Type: TypeText},
			},
		},
	}}
	return &EntityServiceImpl{Repo: repo, Logger: zap.NewNop()}
}

func TestResolveFields(t *testing.T) {
	tests := []struct {
		name        string
		root        string
		path        string
		wantEntity  string
		wantNS      string
		wantVerbose string
		wantErr     error
	}{
		{name: "empty path stays on root", root: "order", path: "", wantEntity: "order", wantNS: "sales"},
		{name: "one hop", root: "order", path: "customer", wantEntity: "customer", wantNS: "crm", wantVerbose: "customer"},
		{name: "two hops", root: "order", path: "customer__address", wantEntity: "address", wantNS: "crm", wantVerbose: "customer::address"},
		{name: "m2m uses reverse accessor", root: "order", path: "tags", wantEntity: "tag", wantNS: "sales", wantVerbose: "orders"},
		{name: "unknown root", root: "ghost", path: "", wantErr: ErrEntityNotFound},
		{name: "unknown segment", root: "order", path: "ghost", wantErr: ErrUnknownField},
		{name: "segment is not a relation", root: "order", path: "total", wantErr: ErrInvalidPath},
	}

	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := svc.ResolveFields(context.Background(), tt.root, tt.path)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveFields() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveFields() error = %v", err)
			}
			if info.Entity.Name != tt.wantEntity {
				t.Errorf("entity = %s, want %s", info.Entity.Name, tt.wantEntity)
			}
			if info.Namespace != tt.wantNS {
				t.Errorf("namespace = %s, want %s", info.Namespace, tt.wantNS)
			}
			if info.PathVerbose != tt.wantVerbose {
				t.Errorf("verbose path = %q, want %q", info.PathVerbose, tt.wantVerbose)
			}
		})
	}
}

func TestResolveFieldsBucketsByKind(t *testing.T) {
	svc := newTestService()
	info, err := svc.ResolveFields(context.Background(), "order", "customer")
	if err != nil {
		t.Fatalf("ResolveFields() error = %v", err)
	}
	if len(info.Fields) != 1 || info.Fields[0].Name != "name" {
		t.Errorf("direct fields = %v", info.Fields)
	}
	if len(info.CustomFields) != 1 || info.CustomFields[0].Name != "segment" {
		t.Errorf("custom fields = %v", info.CustomFields)
	}
	if len(info.Relations) != 1 || info.Relations[0].Name != "address" {
		t.Errorf("relations = %v", info.Relations)
	}
}

func TestCreateEntityDefaults(t *testing.T) {
	svc := newTestService()
	e := &Entity{
		Name:   "ticket",
		Label:  "Ticket",
		Fields: []EntityField{{Name: "subject"}},
	}
	if err := svc.CreateEntity(context.Background(), e); err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	if e.Namespace != "ticket" {
		t.Errorf("namespace defaulted to %q, want entity name", e.Namespace)
	}
	if e.Fields[0].Kind != KindField {
		t.Errorf("field kind defaulted to %q, want %q", e.Fields[0].Kind, KindField)
	}
}

func TestCreateEntityRejectsDuplicate(t *testing.T) {
	svc := newTestService()
	if err := svc.CreateEntity(context.Background(), &Entity{Name: "order", Label: "Order"}); err == nil {
		t.Errorf("expected an error for a duplicate entity name")
	}
}

func TestSystemEntityIsImmutable(t *testing.T) {
	svc := newTestService()
	sys := &Entity{Name: "users", Label: "Users", IsSystem: true}
	if err := svc.Repo.Create(context.Background(), sys); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.UpdateEntity(context.Background(), sys); err == nil {
		t.Errorf("expected update of a system entity to fail")
	}
	if err := svc.DeleteEntity(context.Background(), "users"); err == nil {
		t.Errorf("expected delete of a system entity to fail")
	}
}

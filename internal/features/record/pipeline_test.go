package record

import (
	"errors"
	"reflect"
	"testing"

	common_models "go-reports/internal/common/models"
	"go-reports/internal/features/entity"

	"go.mongodb.org/mongo-driver/bson"
)

func testSchema() map[string]*entity.Entity {
	order := &entity.Entity{
		Name: "order",
		Fields: []entity.EntityField{
			{Name: "total", Kind: entity.KindField, Type: entity.TypeNumber},
			{Name: "status", Kind: entity.KindField, Type: entity.TypeText},
			{Name: "customer", Kind: entity.KindRelation, Relation: &entity.RelationDef{Entity: "customer"}},
			{Name: "tags", Kind: entity.KindRelation, Relation: &entity.RelationDef{Entity: "tag", ManyToMany: true}},
		},
	}
	customer := &entity.Entity{
		Name: "customer",
		Fields: []entity.EntityField{
			{Name: "name", Kind: entity.KindField, Type: entity.TypeText},
			{Name: "address", Kind: entity.KindRelation, Relation: &entity.RelationDef{Entity: "address"}},
		},
	}
	address := &entity.Entity{
		Name: "address",
		Fields: []entity.EntityField{
			{Name: "city", Kind: entity.KindField, Type: entity.TypeText},
		},
	}
	tag := &entity.Entity{
		Name: "tag",
		Fields: []entity.EntityField{
			{Name: "label", Kind: entity.KindField, Type: entity.TypeText},
		},
	}
	return map[string]*entity.Entity{"order": order, "customer": customer, "address": address, "tag": tag}
}

func testPlanner() *planner {
	schema := testSchema()
	return &planner{
		root: schema["order"],
		load: func(name string) (*entity.Entity, error) {
			if e, ok := schema[name]; ok {
				return e, nil
			}
			return nil, entity.ErrEntityNotFound
		},
	}
}

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantRef   string
		wantAgg   string
		wantAlias string
		wantMany  bool
		wantJoins int
		wantErr   error
	}{
		{name: "direct field", key: "total", wantRef: "total"},
		{name: "pk", key: "pk", wantRef: "_id"},
		{name: "single relation", key: "customer__name", wantRef: "customer.name", wantAlias: "customer", wantJoins: 1},
		{name: "two hops", key: "customer__address__city", wantRef: "customer__address.city", wantAlias: "customer__address", wantJoins: 2},
		{name: "aggregate suffix", key: "total__sum", wantRef: "total", wantAgg: "sum"},
		{name: "aggregate over relation", key: "tags__label__count", wantRef: "tags.label", wantAgg: "count", wantAlias: "tags", wantMany: true, wantJoins: 1},
		{name: "count of related pks", key: "tags__pk__count", wantRef: "tags._id", wantAgg: "count", wantAlias: "tags", wantMany: true, wantJoins: 1},
		{name: "child pk", key: "tags__pk", wantRef: "tags._id", wantAlias: "tags", wantMany: true, wantJoins: 1},
		{name: "unknown field", key: "nope", wantErr: entity.ErrUnknownField},
		{name: "unknown field after relation", key: "customer__nope", wantErr: entity.ErrUnknownField},
		{name: "dangling relation", key: "customer", wantErr: entity.ErrInvalidPath},
		{name: "segment after leaf", key: "total__name", wantErr: entity.ErrInvalidPath},
		{name: "segment after pk", key: "pk__name", wantErr: entity.ErrInvalidPath},
		{name: "empty key", key: "", wantErr: entity.ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var joins []relJoin
			ref, err := testPlanner().resolveKey(tt.key, &joins, map[string]bool{})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("resolveKey(%q) error = %v, want %v", tt.key, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveKey(%q) error = %v", tt.key, err)
			}
			if ref.fieldRef != tt.wantRef {
				t.Errorf("fieldRef = %q, want %q", ref.fieldRef, tt.wantRef)
			}
			if ref.agg != tt.wantAgg {
				t.Errorf("agg = %q, want %q", ref.agg, tt.wantAgg)
			}
			if ref.relAlias != tt.wantAlias {
				t.Errorf("relAlias = %q, want %q", ref.relAlias, tt.wantAlias)
			}
			if ref.viaMany != tt.wantMany {
				t.Errorf("viaMany = %v, want %v", ref.viaMany, tt.wantMany)
			}
			if len(joins) != tt.wantJoins {
				t.Errorf("got %d joins, want %d", len(joins), tt.wantJoins)
			}
		})
	}
}

func TestResolveKeySharesJoins(t *testing.T) {
	p := testPlanner()
	var joins []relJoin
	seen := map[string]bool{}

	if _, err := p.resolveKey("customer__name", &joins, seen); err != nil {
		t.Fatalf("resolveKey() error = %v", err)
	}
	if _, err := p.resolveKey("customer__address__city", &joins, seen); err != nil {
		t.Fatalf("resolveKey() error = %v", err)
	}

	// The customer join is shared; only the address hop is added
	if len(joins) != 2 {
		t.Fatalf("got %d joins, want 2", len(joins))
	}
	if joins[0].alias != "customer" || joins[1].alias != "customer__address" {
		t.Errorf("join aliases = [%s %s]", joins[0].alias, joins[1].alias)
	}
	if joins[1].localField != "customer.address" {
		t.Errorf("nested localField = %q, want customer.address", joins[1].localField)
	}
	if joins[0].from != "records_customer" {
		t.Errorf("from = %q, want records_customer", joins[0].from)
	}
	if joins[0].foreign != "_id" {
		t.Errorf("foreign = %q, want _id", joins[0].foreign)
	}
}

func TestLookupStages(t *testing.T) {
	joins := []relJoin{
		{alias: "customer", localField: "customer", from: "records_customer", foreign: "_id"},
		{alias: "tags", localField: "tags", from: "records_tag", foreign: "_id", manyToMany: true},
	}

	stages := lookupStages(joins, map[string]bool{"tags": true})

	// customer gets lookup+unwind, the kept tags array only a lookup
	if len(stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(stages))
	}
	if stages[0][0].Key != "$lookup" || stages[1][0].Key != "$unwind" || stages[2][0].Key != "$lookup" {
		t.Errorf("stage order = [%s %s %s]", stages[0][0].Key, stages[1][0].Key, stages[2][0].Key)
	}

	stages = lookupStages(joins, nil)
	if len(stages) != 4 {
		t.Errorf("got %d stages without kept arrays, want 4", len(stages))
	}
}

func TestKeyRefProjection(t *testing.T) {
	tests := []struct {
		name      string
		ref       keyRef
		arrayKept bool
		want      interface{}
	}{
		{
			name: "plain field",
			ref:  keyRef{fieldRef: "total"},
			want: "$total",
		},
		{
			name:      "avg over kept array",
			ref:       keyRef{fieldRef: "tags.weight", relAlias: "tags", viaMany: true, field: "weight", agg: "avg"},
			arrayKept: true,
			want:      bson.M{"$avg": "$tags.weight"},
		},
		{
			name:      "count over kept array",
			ref:       keyRef{fieldRef: "tags._id", relAlias: "tags", viaMany: true, field: "_id", agg: "count"},
			arrayKept: true,
			want:      bson.M{"$size": bson.M{"$ifNull": []interface{}{"$tags", bson.A{}}}},
		},
		{
			name: "count over single value",
			ref:  keyRef{fieldRef: "customer.name", relAlias: "customer", field: "name", agg: "count"},
			want: bson.M{"$cond": []interface{}{bson.M{"$ne": []interface{}{"$customer.name", nil}}, 1, 0}},
		},
		{
			name: "sum over single value degenerates",
			ref:  keyRef{fieldRef: "total", field: "total", agg: "sum"},
			want: "$total",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ref.projection(tt.arrayKept)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("projection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func predicateOn(field, operator string, value interface{}) Predicate {
	return Predicate{Filter: common_models.Filter{Field: field, Operator: operator, Value: value}}
}

func TestArrayAliases(t *testing.T) {
	joins := []relJoin{
		{alias: "customer", manyToMany: false},
		{alias: "tags", manyToMany: true},
	}

	tests := []struct {
		name       string
		refs       []*keyRef
		predicates []Predicate
		wantKept   bool
	}{
		{
			name:     "aggregate-only use keeps the array",
			refs:     []*keyRef{{relAlias: "tags", agg: "count"}},
			wantKept: true,
		},
		{
			name:     "plain use forces unwind",
			refs:     []*keyRef{{relAlias: "tags", agg: "count"}, {relAlias: "tags"}},
			wantKept: false,
		},
		{
			name:       "predicate through the relation forces unwind",
			refs:       []*keyRef{{relAlias: "tags", agg: "count"}},
			predicates: []Predicate{predicateOn("tags__label", "exact", "a")},
			wantKept:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keep := arrayAliases(joins, tt.refs, tt.predicates)
			if keep["tags"] != tt.wantKept {
				t.Errorf("keep[tags] = %v, want %v", keep["tags"], tt.wantKept)
			}
			if keep["customer"] {
				t.Errorf("single-valued join must never be kept as an array")
			}
		})
	}
}

package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldKind separates how a field's value is obtained.
type FieldKind string

const (
	KindField    FieldKind = "field"    // stored directly on the record
	KindRelation FieldKind = "relation" // reference to another entity's records
	KindProperty FieldKind = "property" // computed in-process from an expression
	KindCustom   FieldKind = "custom"   // per-record value in the custom store
)

// ColumnType is the value type a field produces. Used for sort defaults
// and cell coercion.
type ColumnType string

const (
	TypeText     ColumnType = "text"
	TypeNumber   ColumnType = "number"
	TypeDate     ColumnType = "date"
	TypeDatetime ColumnType = "datetime"
	TypeBoolean  ColumnType = "boolean"
	TypeSelect   ColumnType = "select"
)

type SelectOption struct {
	Label string `json:"label" bson:"label"`
	Value string `json:"value" bson:"value"`
}

type RelationDef struct {
	Entity      string `json:"entity" bson:"entity"`                                   // Target entity name
	ManyToMany  bool   `json:"many_to_many" bson:"many_to_many"`                       // Field stores an id array
	ReverseName string `json:"reverse_name,omitempty" bson:"reverse_name,omitempty"`   // Accessor label seen from the far side
	ValueField  string `json:"value_field,omitempty" bson:"value_field,omitempty"`     // Stored field on the target, defaults to _id
}

type EntityField struct {
	Name       string         `json:"name" bson:"name"`
	Label      string         `json:"label" bson:"label"`
	Kind       FieldKind      `json:"kind" bson:"kind"`
	Type       ColumnType     `json:"type" bson:"type"`
	Required   bool           `json:"required" bson:"required"`
	Options    []SelectOption `json:"options,omitempty" bson:"options,omitempty"` // For select fields
	Relation   *RelationDef   `json:"relation,omitempty" bson:"relation,omitempty"`
	Expression string         `json:"expression,omitempty" bson:"expression,omitempty"` // For property fields
}

// Choices returns the raw-value -> label mapping for select fields,
// nil when the field carries no options.
func (f *EntityField) Choices() map[string]string {
	if len(f.Options) == 0 {
		return nil
	}
	choices := make(map[string]string, len(f.Options))
	for _, opt := range f.Options {
		choices[opt.Value] = opt.Label
	}
	return choices
}

// Entity is the metadata definition of one record type.
type Entity struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"` // Unique internal name (e.g. "customers")
	Label     string             `json:"label" bson:"label"`
	Namespace string             `json:"namespace" bson:"namespace"` // Access-control namespace
	Fields    []EntityField      `json:"fields" bson:"fields"`
	IsSystem  bool               `json:"is_system" bson:"is_system"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

func (e *Entity) FieldByName(name string) *EntityField {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

func (e *Entity) fieldsOfKind(kind FieldKind) []EntityField {
	var out []EntityField
	for _, f := range e.Fields {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func (e *Entity) DirectFields() []EntityField { return e.fieldsOfKind(KindField) }
func (e *Entity) Properties() []EntityField   { return e.fieldsOfKind(KindProperty) }
func (e *Entity) CustomFields() []EntityField { return e.fieldsOfKind(KindCustom) }
func (e *Entity) Relations() []EntityField    { return e.fieldsOfKind(KindRelation) }

package report

import (
	"time"

	"go-reports/internal/features/entity"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Aggregate names the function applied over a display field's column.
type Aggregate string

const (
	AggregateNone  Aggregate = ""
	AggregateSum   Aggregate = "Sum"
	AggregateAvg   Aggregate = "Avg"
	AggregateMin   Aggregate = "Min"
	AggregateMax   Aggregate = "Max"
	AggregateCount Aggregate = "Count"
)

// Suffix is the lower-case token appended to a query key to name the
// aggregate's value, e.g. "orders__total__sum".
func (a Aggregate) Suffix() string {
	switch a {
	case AggregateSum:
		return "sum"
	case AggregateAvg:
		return "avg"
	case AggregateMin:
		return "min"
	case AggregateMax:
		return "max"
	case AggregateCount:
		return "count"
	default:
		return ""
	}
}

// FieldType classifies how a display field's value is sourced.
type FieldType string

const (
	FieldTypeField    FieldType = "field"
	FieldTypeProperty FieldType = "property"
	FieldTypeCustom   FieldType = "custom"
	FieldTypeInvalid  FieldType = "invalid"
)

// DisplayField is one output column specification. Position is the column's
// 0-based index in the final row tuple and stays stable through evaluation.
type DisplayField struct {
	Path          string            `bson:"path" json:"path"`
	Field         string            `bson:"field" json:"field"`
	Name          string            `bson:"name" json:"name"`
	Aggregate     Aggregate         `bson:"aggregate" json:"aggregate"`
	Group         bool              `bson:"group" json:"group"`
	Sort          int               `bson:"sort" json:"sort"`
	SortReverse   bool              `bson:"sort_reverse" json:"sort_reverse"`
	Total         bool              `bson:"total" json:"total"`
	FieldType     FieldType         `bson:"field_type" json:"field_type"`
	Choices       map[string]string `bson:"choices,omitempty" json:"choices,omitempty"`
	DisplayFormat string            `bson:"display_format,omitempty" json:"display_format,omitempty"`
	ColumnType    entity.ColumnType `bson:"column_type,omitempty" json:"column_type,omitempty"`
	Position      int               `bson:"position" json:"position"`
}

// QueryKey is the path-separated reference this field projects,
// without any aggregate suffix.
func (df DisplayField) QueryKey() string {
	if df.Path == "" {
		return df.Field
	}
	return df.Path + entity.PathSeparator + df.Field
}

// DisplayKey is the key the field's value is reported under: the query key
// plus the aggregate suffix when one applies.
func (df DisplayField) DisplayKey() string {
	if s := df.Aggregate.Suffix(); s != "" {
		return df.QueryKey() + entity.PathSeparator + s
	}
	return df.QueryKey()
}

// FilterField is one stored report filter. Field filters are pushed down to
// the record store; property and custom filters run in-process per row after
// materialization because they read computed values.
type FilterField struct {
	Path      string      `bson:"path" json:"path"`
	Field     string      `bson:"field" json:"field"`
	FieldType FieldType   `bson:"field_type" json:"field_type"`
	Operator  string      `bson:"operator" json:"operator"`
	Value     interface{} `bson:"value" json:"value"`
	Exclude   bool        `bson:"exclude" json:"exclude"`
	Position  int         `bson:"position" json:"position"`
}

func (ff FilterField) QueryKey() string {
	if ff.Path == "" {
		return ff.Field
	}
	return ff.Path + entity.PathSeparator + ff.Field
}

// InProcess reports whether this filter must run row-by-row instead of
// being compiled into the store query.
func (ff FilterField) InProcess() bool {
	return ff.FieldType == FieldTypeProperty || ff.FieldType == FieldTypeCustom
}

// Report is a stored report definition.
type Report struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Slug          string             `bson:"slug" json:"slug"`
	Description   string             `bson:"description" json:"description"`
	RootEntity    string             `bson:"root_entity" json:"root_entity"`
	Distinct      bool               `bson:"distinct" json:"distinct"`
	DisplayFields []DisplayField     `bson:"display_fields" json:"display_fields"`
	FilterFields  []FilterField      `bson:"filter_fields" json:"filter_fields"`
	CreatedBy     string             `bson:"created_by" json:"created_by"`
	ModifiedBy    string             `bson:"modified_by" json:"modified_by"`
	StarredBy     []string           `bson:"starred_by,omitempty" json:"starred_by,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// Starred reports whether the given user starred this report.
func (r *Report) Starred(userID string) bool {
	for _, id := range r.StarredBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Row is one output row, cell values indexed by display-field position.
type Row []interface{}

// ReportResult is the evaluator's output. Message carries permission or
// partial-failure diagnostics and is empty on full success.
type ReportResult struct {
	Rows    []Row  `json:"rows"`
	Message string `json:"message"`
}

// Header returns the column labels in position order.
func Header(fields []DisplayField) []string {
	width := rowWidth(fields)
	header := make([]string, width)
	for _, df := range fields {
		if df.Position < 0 || df.Position >= width {
			continue
		}
		label := df.Name
		if label == "" {
			label = df.Field
		}
		header[df.Position] = label
	}
	return header
}

func rowWidth(fields []DisplayField) int {
	width := 0
	for _, df := range fields {
		if df.Position+1 > width {
			width = df.Position + 1
		}
	}
	return width
}

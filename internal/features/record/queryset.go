package record

import (
	"context"
)

// PKKey is the reserved query key naming a record's primary key.
const PKKey = "pk"

// Aggregation names an aggregate computed over a query key.
type Aggregation struct {
	Key  string // query key, e.g. "orders__total"
	Func string // avg, sum, min, max, count
}

// ResultKey is the key the aggregate's value is reported under,
// mirroring the display-key suffix scheme ("orders__total__sum").
func (a Aggregation) ResultKey() string {
	return a.Key + "__" + a.Func
}

// RowIterator streams flat projection rows. Callers must Close it.
type RowIterator interface {
	Next(ctx context.Context) bool
	Row() []interface{}
	Err() error
	Close(ctx context.Context) error
}

// Object is a materialized record handle used for property filters and
// computed-field resolution. One fetch per distinct record.
type Object interface {
	PK() interface{}
	// Field reads a stored field value from the record document.
	Field(name string) (interface{}, bool)
	// Follow resolves a single-valued relation to the related object.
	Follow(ctx context.Context, relation string) (Object, error)
	// FollowMany resolves one member of a many-to-many relation by its pk.
	FollowMany(ctx context.Context, relation string, pk interface{}) (Object, error)
	// Property evaluates a computed-property expression on this record.
	Property(ctx context.Context, name string) (interface{}, error)
	// CustomValue reads this record's value for a named custom field.
	CustomValue(ctx context.Context, name string) (interface{}, error)
}

// Queryset is a filtered view over one entity's records. The report engine
// only ever needs the three materialization paths below.
type Queryset interface {
	EntityName() string
	// ValuesFlat streams one row per record (fanned out over unwound
	// many-to-many joins), with values ordered as the given query keys.
	ValuesFlat(ctx context.Context, keys []string) (RowIterator, error)
	// ValuesGrouped materializes a grouped projection with aggregates.
	// Result maps are keyed by group keys and aggregation result keys.
	ValuesGrouped(ctx context.Context, groupKeys []string, aggs []Aggregation) ([]map[string]interface{}, error)
	// Object fetches the backing record for in-process resolution.
	Object(ctx context.Context, pk interface{}) (Object, error)
}

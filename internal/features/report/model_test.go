package report

import (
	"testing"
)

func TestDisplayFieldKeys(t *testing.T) {
	tests := []struct {
		name        string
		df          DisplayField
		wantQuery   string
		wantDisplay string
	}{
		{
			name:        "direct field",
			df:          DisplayField{Field: "total"},
			wantQuery:   "total",
			wantDisplay: "total",
		},
		{
			name:        "related field",
			df:          DisplayField{Path: "customer", Field: "name"},
			wantQuery:   "customer__name",
			wantDisplay: "customer__name",
		},
		{
			name:        "aggregated field",
			df:          DisplayField{Path: "orders", Field: "total", Aggregate: AggregateSum},
			wantQuery:   "orders__total",
			wantDisplay: "orders__total__sum",
		},
		{
			name:        "count",
			df:          DisplayField{Field: "pk", Aggregate: AggregateCount},
			wantQuery:   "pk",
			wantDisplay: "pk__count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.df.QueryKey(); got != tt.wantQuery {
				t.Errorf("QueryKey() = %q, want %q", got, tt.wantQuery)
			}
			if got := tt.df.DisplayKey(); got != tt.wantDisplay {
				t.Errorf("DisplayKey() = %q, want %q", got, tt.wantDisplay)
			}
		})
	}
}

func TestHeaderUsesPositions(t *testing.T) {
	fields := []DisplayField{
		{Name: "Total", Position: 1},
		{Name: "Name", Position: 0},
	}
	got := Header(fields)
	if len(got) != 2 || got[0] != "Name" || got[1] != "Total" {
		t.Errorf("Header() = %v, want [Name Total]", got)
	}
}

func TestFilterFieldInProcess(t *testing.T) {
	if (FilterField{FieldType: FieldTypeField}).InProcess() {
		t.Errorf("plain field filters run in the store")
	}
	if !(FilterField{FieldType: FieldTypeProperty}).InProcess() {
		t.Errorf("property filters run in-process")
	}
	if !(FilterField{FieldType: FieldTypeCustom}).InProcess() {
		t.Errorf("custom field filters run in-process")
	}
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		operator string
		filter   interface{}
		want     bool
	}{
		{"exact string", "open", "exact", "open", true},
		{"exact number against string form", 10.0, "exact", "10", true},
		{"iexact", "OPEN", "iexact", "open", true},
		{"icontains", "Acme Corp", "icontains", "acme", true},
		{"gt numeric", 15, "gt", "10", true},
		{"gt falls back to strings", "b", "gt", "a", true},
		{"lte", 10, "lte", 10, true},
		{"in", "b", "in", []interface{}{"a", "b"}, true},
		{"in miss", "c", "in", []interface{}{"a", "b"}, false},
		{"range inside", 5, "range", []interface{}{1, 10}, true},
		{"range outside", 11, "range", []interface{}{1, 10}, false},
		{"isnull true", nil, "isnull", "true", true},
		{"isnull false", "x", "isnull", "true", false},
		{"regex", "report-42", "regex", `^report-\d+$`, true},
		{"unknown operator never matches", "x", "between", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(tt.value, tt.operator, tt.filter); got != tt.want {
				t.Errorf("matchesFilter(%v, %q, %v) = %v, want %v", tt.value, tt.operator, tt.filter, got, tt.want)
			}
		})
	}
}

func TestFilterPlanExcludes(t *testing.T) {
	keep := &filterPlan{ff: FilterField{Operator: "exact", Value: "open"}}
	if keep.excludes("open") {
		t.Errorf("matching value must not be excluded")
	}
	if !keep.excludes("closed") {
		t.Errorf("non-matching value must be excluded")
	}

	drop := &filterPlan{ff: FilterField{Operator: "exact", Value: "open", Exclude: true}}
	if !drop.excludes("open") {
		t.Errorf("exclude inverts a match into a drop")
	}
	if drop.excludes("closed") {
		t.Errorf("exclude keeps non-matching values")
	}
}

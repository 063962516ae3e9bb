package report

import (
	"context"
	"fmt"
	"testing"

	"go-reports/internal/features/entity"
	"go-reports/internal/features/record"
	"go-reports/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---- fakes ----

type fakeEntityRepo struct {
	entities map[string]*entity.Entity
}

func (r *fakeEntityRepo) Create(ctx context.Context, e *entity.Entity) error { return nil }
func (r *fakeEntityRepo) FindByName(ctx context.Context, name string) (*entity.Entity, error) {
	if e, ok := r.entities[name]; ok {
		return e, nil
	}
	return nil, entity.ErrEntityNotFound
}
func (r *fakeEntityRepo) List(ctx context.Context) ([]entity.Entity, error) { return nil, nil }
func (r *fakeEntityRepo) Update(ctx context.Context, e *entity.Entity) error {
	return nil
}
func (r *fakeEntityRepo) Delete(ctx context.Context, name string) error { return nil }

type allowChecker struct{}

func (allowChecker) CanChangeOrView(ctx context.Context, roles []string, namespace, entityName string) (bool, error) {
	return true, nil
}

type denyChecker struct{}

func (denyChecker) CanChangeOrView(ctx context.Context, roles []string, namespace, entityName string) (bool, error) {
	return false, nil
}

type fakeObject struct {
	pk      interface{}
	fields  map[string]interface{}
	props   map[string]interface{}
	customs map[string]interface{}
	related map[string]record.Object
}

func (o *fakeObject) PK() interface{} { return o.pk }
func (o *fakeObject) Field(name string) (interface{}, bool) {
	v, ok := o.fields[name]
	return v, ok
}
func (o *fakeObject) Follow(ctx context.Context, relation string) (record.Object, error) {
	return o.related[relation], nil
}
func (o *fakeObject) FollowMany(ctx context.Context, relation string, pk interface{}) (record.Object, error) {
	return o.related[relation+"/"+fmt.Sprint(pk)], nil
}
func (o *fakeObject) Property(ctx context.Context, name string) (interface{}, error) {
	return o.props[name], nil
}
func (o *fakeObject) CustomValue(ctx context.Context, name string) (interface{}, error) {
	return o.customs[name], nil
}

type fakeIterator struct {
	rows [][]interface{}
	idx  int
}

func (it *fakeIterator) Next(ctx context.Context) bool {
	if it.idx >= len(it.rows) {
		return false
	}
	it.idx++
	return true
}
func (it *fakeIterator) Row() []interface{}              { return it.rows[it.idx-1] }
func (it *fakeIterator) Err() error                      { return nil }
func (it *fakeIterator) Close(ctx context.Context) error { return nil }

// fakeQueryset materializes projections from in-memory docs keyed by query
// key, tracking call counts for the permission-gate property.
type fakeQueryset struct {
	name    string
	docs    []map[string]interface{}
	objects map[string]*fakeObject

	flatCalls    int
	groupedCalls int
	objectCalls  int
	groupKeys    []string
	aggs         []record.Aggregation
}

func (q *fakeQueryset) EntityName() string { return q.name }

func (q *fakeQueryset) ValuesFlat(ctx context.Context, keys []string) (record.RowIterator, error) {
	q.flatCalls++
	rows := make([][]interface{}, 0, len(q.docs))
	for _, doc := range q.docs {
		row := make([]interface{}, len(keys))
		for i, key := range keys {
			row[i] = doc[key]
		}
		rows = append(rows, row)
	}
	return &fakeIterator{rows: rows}, nil
}

func (q *fakeQueryset) ValuesGrouped(ctx context.Context, groupKeys []string, aggs []record.Aggregation) ([]map[string]interface{}, error) {
	q.groupedCalls++
	q.groupKeys = groupKeys
	q.aggs = aggs

	var order []string
	groups := make(map[string][]map[string]interface{})
	for _, doc := range q.docs {
		key := ""
		for _, gk := range groupKeys {
			key += fmt.Sprint(doc[gk]) + "|"
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], doc)
	}

	var out []map[string]interface{}
	for _, key := range order {
		members := groups[key]
		row := make(map[string]interface{})
		for _, gk := range groupKeys {
			row[gk] = members[0][gk]
		}
		for _, agg := range aggs {
			var acc float64
			count := 0
			for _, m := range members {
				v, ok := m[agg.Key]
				if !ok || v == nil {
					continue
				}
				f := toFloat(v)
				count++
				switch agg.Func {
				case "sum", "avg":
					acc += f
				case "max":
					if count == 1 || f > acc {
						acc = f
					}
				case "min":
					if count == 1 || f < acc {
						acc = f
					}
				}
			}
			switch agg.Func {
			case "count":
				row[agg.ResultKey()] = count
			case "avg":
				if count > 0 {
					row[agg.ResultKey()] = acc / float64(count)
				}
			default:
				row[agg.ResultKey()] = acc
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (q *fakeQueryset) Object(ctx context.Context, pk interface{}) (record.Object, error) {
	q.objectCalls++
	return q.objects[fmt.Sprint(pk)], nil
}

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	default:
		return 0
	}
}

// ---- fixtures ----

func testIntrospector() entity.Introspector {
	client := &entity.Entity{
		Name:      "client",
		Label:     "Client",
		Namespace: "clients",
		Fields: []entity.EntityField{
			{Name: "name", Label: "Name", Kind: entity.KindField, Type: entity.TypeText},
			{Name: "amount", Label: "Amount", Kind: entity.KindField, Type: entity.TypeNumber},
			{Name: "status", Label: "Status", Kind: entity.KindField, Type: entity.TypeSelect,
				Options: []entity.SelectOption{{Value: "a", Label: "Active"}, {Value: "c", Label: "Closed"}}},
			{Name: "score", Kind: entity.KindProperty, Expression: "value := record.amount"},
			{Name: "account", Kind: entity.KindRelation, Relation: &entity.RelationDef{Entity: "account"}},
		},
	}
	account := &entity.Entity{
		Name:      "account",
		Label:     "Account",
		Namespace: "accounts",
		Fields: []entity.EntityField{
			{Name: "balance", Label: "Balance", Kind: entity.KindField, Type: entity.TypeNumber},
		},
	}
	repo := &fakeEntityRepo{entities: map[string]*entity.Entity{"client": client, "account": account}}
	return &entity.EntityServiceImpl{Repo: repo, Logger: zap.NewNop()}
}

func newTestEvaluator(checker PermissionChecker) *Evaluator {
	return NewEvaluator(testIntrospector(), checker, zap.NewNop())
}

func clientDocs(n int) ([]map[string]interface{}, map[string]*fakeObject) {
	docs := make([]map[string]interface{}, 0, n)
	objects := make(map[string]*fakeObject, n)
	for i := 1; i <= n; i++ {
		pk := fmt.Sprintf("c%d", i)
		amount := float64(i * 5)
		docs = append(docs, map[string]interface{}{
			"pk":     pk,
			"name":   fmt.Sprintf("client-%d", i),
			"amount": amount,
			"status": "a",
		})
		objects[pk] = &fakeObject{
			pk:     pk,
			fields: map[string]interface{}{"name": fmt.Sprintf("client-%d", i), "amount": amount},
			props:  map[string]interface{}{"score": amount},
		}
	}
	return docs, objects
}

// ---- tests ----

func TestEvaluateFlatRowCountAndOrder(t *testing.T) {
	docs, objects := clientDocs(3)
	qs := &fakeQueryset{name: "client", docs: docs, objects: objects}

	fields := []DisplayField{
		{Field: "name", FieldType: FieldTypeField, Position: 0},
		{Field: "amount", FieldType: FieldTypeField, Position: 1},
	}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Message != "" {
		t.Errorf("unexpected message %q", result.Message)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(result.Rows))
	}
	if result.Rows[0][0] != "client-1" || result.Rows[0][1] != 5.0 {
		t.Errorf("row 0 = %v, want [client-1 5]", result.Rows[0])
	}
	if qs.objectCalls != 0 {
		t.Errorf("fetched %d objects for a purely columnar report, want 0", qs.objectCalls)
	}
}

func TestEvaluatePermissionGateIssuesNoQueries(t *testing.T) {
	docs, objects := clientDocs(3)
	qs := &fakeQueryset{name: "client", docs: docs, objects: objects}

	fields := []DisplayField{{Field: "name", FieldType: FieldTypeField, Position: 0}}
	user := &utils.UserClaims{UserID: "u1", Roles: []string{"viewer"}}

	result, err := newTestEvaluator(denyChecker{}).Evaluate(context.Background(), qs, fields, user, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Message != "Permission Denied" {
		t.Errorf("message = %q, want Permission Denied", result.Message)
	}
	if len(result.Rows) != 0 {
		t.Errorf("got %d rows, want 0", len(result.Rows))
	}
	if qs.flatCalls+qs.groupedCalls+qs.objectCalls != 0 {
		t.Errorf("queries were issued despite the permission gate")
	}
}

func TestEvaluateStaffBypassesPermissionGate(t *testing.T) {
	docs, objects := clientDocs(1)
	qs := &fakeQueryset{name: "client", docs: docs, objects: objects}

	fields := []DisplayField{{Field: "name", FieldType: FieldTypeField, Position: 0}}
	user := &utils.UserClaims{UserID: "u1", Staff: true}

	result, err := newTestEvaluator(denyChecker{}).Evaluate(context.Background(), qs, fields, user, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Errorf("got %d rows, want 1", len(result.Rows))
	}
}

func TestEvaluateTotalsSkipFilteredRows(t *testing.T) {
	docs, objects := clientDocs(3) // amounts 5, 10, 15
	qs := &fakeQueryset{name: "client", docs: docs, objects: objects}

	fields := []DisplayField{
		{Field: "name", FieldType: FieldTypeField, Position: 0},
		{Field: "amount", FieldType: FieldTypeField, Total: true, Position: 1},
	}
	// Exclude the row whose computed score equals 10
	filters := []FilterField{
		{Field: "score", FieldType: FieldTypeProperty, Operator: "exact", Value: "10", Exclude: true},
	}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, filters, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	// 2 surviving data rows + separator + totals
	if len(result.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(result.Rows))
	}
	if result.Rows[2][0] != "TOTALS" {
		t.Errorf("separator row = %v", result.Rows[2])
	}
	total, ok := result.Rows[3][1].(decimal.Decimal)
	if !ok {
		t.Fatalf("totals cell is %T, want decimal.Decimal", result.Rows[3][1])
	}
	if !total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("total = %s, want 20", total)
	}
}

func TestEvaluateGroupedPromotesMax(t *testing.T) {
	docs := []map[string]interface{}{
		{"pk": "1", "status": "a", "amount": 10.0},
		{"pk": "2", "status": "a", "amount": 30.0},
		{"pk": "3", "status": "c", "amount": 20.0},
	}
	qs := &fakeQueryset{name: "client", docs: docs, objects: map[string]*fakeObject{}}

	fields := []DisplayField{
		{Field: "status", FieldType: FieldTypeField, Group: true, Position: 0},
		{Field: "amount", FieldType: FieldTypeField, Position: 1}, // no explicit aggregate
	}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(qs.aggs) != 1 || qs.aggs[0].Func != "max" || qs.aggs[0].Key != "amount" {
		t.Fatalf("aggregations = %v, want amount max", qs.aggs)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(result.Rows))
	}
	// choices on status column replace raw values with labels
	if result.Rows[0][0] != "Active" || result.Rows[0][1] != 30.0 {
		t.Errorf("group a row = %v, want [Active 30]", result.Rows[0])
	}
	if result.Rows[1][0] != "Closed" || result.Rows[1][1] != 20.0 {
		t.Errorf("group c row = %v, want [Closed 20]", result.Rows[1])
	}
}

func TestEvaluatePreviewCapsAtFiftySurvivors(t *testing.T) {
	docs, objects := clientDocs(120)
	qs := &fakeQueryset{name: "client", docs: docs, objects: objects}

	fields := []DisplayField{{Field: "name", FieldType: FieldTypeField, Position: 0}}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, nil, true)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(result.Rows) != PreviewLimit {
		t.Errorf("got %d rows, want %d", len(result.Rows), PreviewLimit)
	}
}

func TestEvaluateSortRankOrderAndStability(t *testing.T) {
	docs := []map[string]interface{}{
		{"pk": "1", "name": "b", "amount": 2.0, "status": "x1"},
		{"pk": "2", "name": "a", "amount": 1.0, "status": "x2"},
		{"pk": "3", "name": "a", "amount": 2.0, "status": "x3"},
		{"pk": "4", "name": "a", "amount": 2.0, "status": "x4"},
	}
	qs := &fakeQueryset{name: "client", docs: docs, objects: map[string]*fakeObject{}}

	// name has the higher rank so it dominates; amount breaks ties
	fields := []DisplayField{
		{Field: "name", FieldType: FieldTypeField, Sort: 2, Position: 0},
		{Field: "amount", FieldType: FieldTypeField, Sort: 1, Position: 1},
		{Field: "status", FieldType: FieldTypeField, Position: 2},
	}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	got := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		got = append(got, fmt.Sprint(row[2]))
	}
	// a/1 first, then the tied a/2 rows in original order, then b/2
	want := []string{"x2", "x3", "x4", "x1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted order = %v, want %v", got, want)
		}
	}
}

func TestEvaluateChoiceFallback(t *testing.T) {
	docs := []map[string]interface{}{
		{"pk": "1", "status": "a"},
		{"pk": "2", "status": "weird"},
	}
	qs := &fakeQueryset{name: "client", docs: docs, objects: map[string]*fakeObject{}}

	fields := []DisplayField{{Field: "status", FieldType: FieldTypeField, Position: 0}}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Rows[0][0] != "Active" {
		t.Errorf("mapped value = %v, want Active", result.Rows[0][0])
	}
	if result.Rows[1][0] != "weird" {
		t.Errorf("unmapped value = %v, want its string form", result.Rows[1][0])
	}
}

func TestEvaluateDisplayFormat(t *testing.T) {
	docs := []map[string]interface{}{{"pk": "1", "amount": 5.0}}
	qs := &fakeQueryset{name: "client", docs: docs, objects: map[string]*fakeObject{}}

	fields := []DisplayField{
		{Field: "amount", FieldType: FieldTypeField, DisplayFormat: "%.2f", Position: 0},
	}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Rows[0][0] != "5.00" {
		t.Errorf("formatted value = %v, want 5.00", result.Rows[0][0])
	}
}

func TestEvaluatePropertyColumn(t *testing.T) {
	docs, objects := clientDocs(2)
	qs := &fakeQueryset{name: "client", docs: docs, objects: objects}

	fields := []DisplayField{
		{Field: "name", FieldType: FieldTypeField, Position: 0},
		{Field: "score", FieldType: FieldTypeProperty, Position: 1},
	}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Rows[0][1] != 5.0 || result.Rows[1][1] != 10.0 {
		t.Errorf("property column = [%v %v], want [5 10]", result.Rows[0][1], result.Rows[1][1])
	}
	if qs.objectCalls != 2 {
		t.Errorf("fetched %d objects, want one per record", qs.objectCalls)
	}
}

func TestEvaluateInvalidFieldKeepsPlaceholder(t *testing.T) {
	docs, objects := clientDocs(1)
	qs := &fakeQueryset{name: "client", docs: docs, objects: objects}

	fields := []DisplayField{
		{Field: "name", FieldType: FieldTypeField, Position: 0},
		{Field: "missing", FieldType: FieldTypeField, Position: 1},
	}

	result, err := newTestEvaluator(allowChecker{}).Evaluate(context.Background(), qs, fields, nil, nil, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Message == "" {
		t.Errorf("expected a diagnostic message for the invalid field")
	}
	if len(result.Rows[0]) != 2 {
		t.Fatalf("row width = %d, want 2", len(result.Rows[0]))
	}
	if result.Rows[0][1] != nil {
		t.Errorf("invalid column = %v, want nil placeholder", result.Rows[0][1])
	}
}

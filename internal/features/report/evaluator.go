package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go-reports/internal/features/entity"
	"go-reports/internal/features/record"
	"go-reports/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PreviewLimit caps preview evaluations at this many surviving rows.
const PreviewLimit = 50

// totalsLabel is the literal separator cell written before the totals row.
const totalsLabel = "TOTALS"

// Evaluator materializes a report definition against a record queryset.
// Evaluation is a single sequential pass with no shared mutable state, so
// one Evaluator serves concurrent requests.
type Evaluator struct {
	Introspector entity.Introspector
	Checker      PermissionChecker
	Logger       *zap.Logger
}

func NewEvaluator(introspector entity.Introspector, checker PermissionChecker, logger *zap.Logger) *Evaluator {
	return &Evaluator{Introspector: introspector, Checker: checker, Logger: logger}
}

// Evaluate runs the full pipeline: permission gate, grouping detection,
// materialization, in-process filtering, totals, sorting, display
// transformation, and the totals rows. Cell-level failures degrade to blank
// cells rather than aborting the run.
func (e *Evaluator) Evaluate(ctx context.Context, qs record.Queryset, displayFields []DisplayField, user *utils.UserClaims, filters []FilterField, preview bool) (*ReportResult, error) {
	pl := &planner{introspector: e.Introspector, checker: e.Checker, user: user}

	// Root permission gate. Must fail before any record query is issued.
	rootEntity, err := e.Introspector.GetEntity(ctx, qs.EntityName())
	if err != nil {
		return nil, err
	}
	allowed, err := pl.allowed(ctx, rootEntity.Namespace, rootEntity.Name)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return &ReportResult{Rows: nil, Message: "Permission Denied"}, nil
	}

	p, err := buildPlan(ctx, pl, qs.EntityName(), displayFields, filters)
	if err != nil {
		return nil, err
	}

	totals := make(map[int]decimal.Decimal)
	for _, col := range p.columns {
		if col.df.Total && !col.invalid && !col.denied {
			totals[col.df.Position] = decimal.Zero
		}
	}

	var rows []Row
	if len(p.groupKeys) > 0 {
		rows, err = e.materializeGrouped(ctx, qs, p, totals)
	} else {
		rows, err = e.materializeFlat(ctx, qs, p, totals, preview)
	}
	if err != nil {
		return nil, err
	}

	e.sortRows(rows, p)
	e.transformDisplay(rows, p)
	rows = e.appendTotals(rows, p, totals)

	return &ReportResult{Rows: rows, Message: strings.Join(p.messages, " ")}, nil
}

func (e *Evaluator) materializeGrouped(ctx context.Context, qs record.Queryset, p *plan, totals map[int]decimal.Decimal) ([]Row, error) {
	results, err := qs.ValuesGrouped(ctx, p.groupKeys, p.aggs)
	if err != nil {
		return nil, err
	}

	noted := false
	rows := make([]Row, 0, len(results))
	for _, result := range results {
		row := make(Row, p.width)
		for _, col := range p.columns {
			if col.isObjectSourced() {
				if !noted {
					p.note("Field %s is computed per record and is blank in grouped output.", col.df.QueryKey())
					noted = true
				}
				continue
			}
			if !col.isQuery() {
				continue
			}
			v := result[col.displayKey]
			row[col.df.Position] = v
			accumulateTotal(totals, col.df.Position, v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (e *Evaluator) materializeFlat(ctx context.Context, qs record.Queryset, p *plan, totals map[int]decimal.Decimal, preview bool) ([]Row, error) {
	// Projection layout: root pk first, then one child pk per fanned
	// many-to-many relation, then the query columns.
	keys := []string{record.PKKey}
	fanIdx := make(map[string]int, len(p.fanRels))
	for _, rel := range p.fanRels {
		fanIdx[rel] = len(keys)
		keys = append(keys, rel+entity.PathSeparator+record.PKKey)
	}

	var queryCols []*column
	colIdx := make(map[*column]int)
	for _, col := range p.columns {
		if col.isQuery() {
			colIdx[col] = len(keys)
			keys = append(keys, col.displayKey)
			queryCols = append(queryCols, col)
		}
	}

	var objectCols []*column
	for _, col := range p.columns {
		if col.isObjectSourced() {
			objectCols = append(objectCols, col)
		}
	}
	needsObject := len(objectCols) > 0 || len(p.inFilters) > 0

	it, err := qs.ValuesFlat(ctx, keys)
	if err != nil {
		return nil, err
	}
	defer it.Close(ctx)

	// One fetch per distinct record, shared across fanned-out rows.
	objects := make(map[string]record.Object)
	fetch := func(pk interface{}) (record.Object, error) {
		key := fmt.Sprint(pk)
		if obj, ok := objects[key]; ok {
			return obj, nil
		}
		obj, err := qs.Object(ctx, pk)
		if err != nil {
			return nil, err
		}
		objects[key] = obj
		return obj, nil
	}

	var rows []Row
	for it.Next(ctx) {
		raw := it.Row()
		pk := raw[0]

		var obj record.Object
		if needsObject {
			obj, err = fetch(pk)
			if err != nil {
				return nil, err
			}
		}

		excluded := false
		for _, fp := range p.inFilters {
			if fp.invalid {
				continue
			}
			var fanPK interface{}
			if fp.fanRel != "" {
				fanPK = raw[fanIdx[fp.fanRel]]
			}
			v, err := executeChain(ctx, obj, fp.chain, fanPK)
			if err != nil {
				e.Logger.Warn("filter value resolution failed",
					zap.String("field", fp.ff.QueryKey()), zap.Error(err))
				v = nil
			}
			if fp.excludes(v) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}

		row := make(Row, p.width)
		for _, col := range queryCols {
			v := raw[colIdx[col]]
			row[col.df.Position] = v
			accumulateTotal(totals, col.df.Position, v)
		}
		for _, col := range objectCols {
			var fanPK interface{}
			if col.fanRel != "" {
				fanPK = raw[fanIdx[col.fanRel]]
			}
			v, err := executeChain(ctx, obj, col.chain, fanPK)
			if err != nil {
				e.Logger.Warn("cell resolution failed",
					zap.String("field", col.df.QueryKey()), zap.Error(err))
				v = nil
			}
			row[col.df.Position] = v
			accumulateTotal(totals, col.df.Position, v)
		}

		rows = append(rows, row)
		if preview && len(rows) >= PreviewLimit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// accumulateTotal folds a surviving cell into its running total. Numbers add
// their value, true booleans add one, everything else is ignored.
func accumulateTotal(totals map[int]decimal.Decimal, position int, v interface{}) {
	acc, ok := totals[position]
	if !ok {
		return
	}
	if b, isBool := v.(bool); isBool {
		if b {
			totals[position] = acc.Add(decimal.NewFromInt(1))
		}
		return
	}
	switch v.(type) {
	case string, nil:
		return
	}
	if d, ok := toDecimal(v); ok {
		totals[position] = acc.Add(d)
	}
}

// sortRows applies the per-field stable sorts. Ranks are processed from
// lowest to highest so the highest rank's sort runs last and dominates,
// with ties keeping the order established by earlier passes.
func (e *Evaluator) sortRows(rows []Row, p *plan) {
	var sortCols []*column
	for _, col := range p.columns {
		if col.df.Sort > 0 && !col.invalid && !col.denied {
			sortCols = append(sortCols, col)
		}
	}
	sort.SliceStable(sortCols, func(i, j int) bool {
		return sortCols[i].df.Sort < sortCols[j].df.Sort
	})

	for _, col := range sortCols {
		colType := col.colType
		if colType == "" {
			colType = sampleColumnType(rows, col.df.Position)
		}
		pos := col.df.Position
		reverse := col.df.SortReverse

		sort.SliceStable(rows, func(i, j int) bool {
			cmp := compareCells(rows[i][pos], rows[j][pos], colType)
			if reverse {
				return cmp > 0
			}
			return cmp < 0
		})
	}
}

// sampleColumnType infers a column's type from its first non-null value,
// used for ad-hoc columns with no declared type.
func sampleColumnType(rows []Row, position int) entity.ColumnType {
	for _, row := range rows {
		if position >= len(row) || row[position] == nil {
			continue
		}
		switch row[position].(type) {
		case string:
			return entity.TypeText
		case time.Time:
			return entity.TypeDatetime
		case bool:
			return entity.TypeBoolean
		default:
			return entity.TypeNumber
		}
	}
	return entity.TypeText
}

// compareCells orders two cell values under a column type, substituting the
// type's minimal sentinel for null so mixed null/typed columns stay
// well-ordered.
func compareCells(a, b interface{}, colType entity.ColumnType) int {
	switch colType {
	case entity.TypeNumber:
		da, _ := toDecimal(a)
		db, _ := toDecimal(b)
		return da.Cmp(db)
	case entity.TypeDate, entity.TypeDatetime:
		ta, _ := toTime(a)
		tb, _ := toTime(b)
		return ta.Compare(tb)
	case entity.TypeBoolean:
		ba, _ := a.(bool)
		bb, _ := b.(bool)
		switch {
		case ba == bb:
			return 0
		case bb:
			return -1
		default:
			return 1
		}
	default:
		return strings.Compare(stringify(a), stringify(b))
	}
}

// transformDisplay applies choice labels then display formats in place.
func (e *Evaluator) transformDisplay(rows []Row, p *plan) {
	for _, col := range p.columns {
		if col.invalid || col.denied {
			continue
		}
		pos := col.df.Position

		if len(col.choices) > 0 {
			for _, row := range rows {
				row[pos] = choiceLabel(col.choices, row[pos])
			}
		}
		if col.df.DisplayFormat != "" {
			for _, row := range rows {
				row[pos] = applyFormat(row[pos], col.df.DisplayFormat)
			}
		}
	}
}

// choiceLabel swaps a raw value for its label, falling back to the string
// form of the raw value when no mapping exists.
func choiceLabel(choices map[string]string, raw interface{}) interface{} {
	if label, ok := choices[stringify(raw)]; ok {
		return label
	}
	return stringify(raw)
}

// applyFormat coerces to decimal when possible and applies the format verb.
// A failed format returns the coerced value unformatted, never an error.
func applyFormat(v interface{}, format string) interface{} {
	coerced := v
	var arg interface{} = v
	if d, ok := toDecimal(v); ok {
		coerced = d
		arg, _ = d.Float64()
	}
	out := fmt.Sprintf(format, arg)
	if strings.Contains(out, "%!") {
		out = fmt.Sprintf(format, stringify(v))
		if strings.Contains(out, "%!") {
			return coerced
		}
	}
	return out
}

// appendTotals writes the separator row and the totals row when any column
// accumulated a total, re-applying display formats to formatted columns.
func (e *Evaluator) appendTotals(rows []Row, p *plan, totals map[int]decimal.Decimal) []Row {
	if len(totals) == 0 {
		return rows
	}

	separator := make(Row, p.width)
	separator[0] = totalsLabel
	for i := 1; i < p.width; i++ {
		separator[i] = ""
	}

	totalRow := make(Row, p.width)
	for i := range totalRow {
		totalRow[i] = ""
	}
	for _, col := range p.columns {
		acc, ok := totals[col.df.Position]
		if !ok {
			continue
		}
		var v interface{} = acc
		if col.df.DisplayFormat != "" {
			v = applyFormat(acc, col.df.DisplayFormat)
		}
		totalRow[col.df.Position] = v
	}

	return append(rows, separator, totalRow)
}

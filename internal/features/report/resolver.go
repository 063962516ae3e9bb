package report

import (
	"context"
	"fmt"

	"go-reports/internal/features/entity"
	"go-reports/internal/features/record"
	"go-reports/pkg/utils"
)

// PermissionChecker gates entity access for the evaluator. Satisfied by the
// role service.
type PermissionChecker interface {
	CanChangeOrView(ctx context.Context, roles []string, namespace, entityName string) (bool, error)
}

type stepKind int

const (
	stepFollow stepKind = iota
	stepFollowMany
	stepReadField
	stepReadProperty
	stepReadCustom
)

// accessorStep is one typed hop of an in-process value resolution. Chains
// are resolved against the schema once per field, then executed generically
// per row.
type accessorStep struct {
	kind stepKind
	name string
}

// column is one display field's resolved execution plan.
type column struct {
	df         DisplayField
	invalid    bool
	denied     bool
	displayKey string
	chain      []accessorStep // set for property/custom columns
	fanRel     string         // root many-to-many relation the chain starts through
	choices    map[string]string
	colType    entity.ColumnType
}

func (c *column) isQuery() bool {
	return !c.invalid && !c.denied && c.df.FieldType == FieldTypeField
}

func (c *column) isObjectSourced() bool {
	return !c.invalid && !c.denied &&
		(c.df.FieldType == FieldTypeProperty || c.df.FieldType == FieldTypeCustom)
}

// filterPlan is one in-process filter's resolved accessor chain.
type filterPlan struct {
	ff      FilterField
	chain   []accessorStep
	fanRel  string
	invalid bool
}

// plan is the full column plan for one evaluation.
type plan struct {
	columns   []*column
	width     int
	groupKeys []string
	aggs      []record.Aggregation
	inFilters []*filterPlan
	fanRels   []string // root m2m relations needing a child pk column
	messages  []string
}

func (p *plan) note(format string, args ...interface{}) {
	p.messages = append(p.messages, fmt.Sprintf(format, args...))
}

func (p *plan) addFanRel(rel string) {
	for _, r := range p.fanRels {
		if r == rel {
			return
		}
	}
	p.fanRels = append(p.fanRels, rel)
}

type planner struct {
	introspector entity.Introspector
	checker      PermissionChecker
	user         *utils.UserClaims
}

func (pl *planner) allowed(ctx context.Context, namespace, entityName string) (bool, error) {
	if pl.user == nil || pl.user.Staff {
		return true, nil
	}
	return pl.checker.CanChangeOrView(ctx, pl.user.Roles, namespace, entityName)
}

// resolveChain builds the accessor chain for a path plus leaf step. Only the
// first segment may be many-to-many; the fan-out column scheme cannot carry
// deeper multiplicities.
func (pl *planner) resolveChain(ctx context.Context, root, path, leaf string, leafStep stepKind) ([]accessorStep, string, error) {
	var chain []accessorStep
	fanRel := ""

	cur, err := pl.introspector.GetEntity(ctx, root)
	if err != nil {
		return nil, "", err
	}

	for i, seg := range entity.SplitPath(path) {
		field := cur.FieldByName(seg)
		if field == nil {
			return nil, "", fmt.Errorf("%w: %s has no field %q", entity.ErrUnknownField, cur.Name, seg)
		}
		if field.Kind != entity.KindRelation || field.Relation == nil {
			return nil, "", fmt.Errorf("%w: %s.%s is not a relation", entity.ErrInvalidPath, cur.Name, seg)
		}

		if field.Relation.ManyToMany {
			if i != 0 {
				return nil, "", fmt.Errorf("%w: nested many-to-many segment %q", entity.ErrInvalidPath, seg)
			}
			fanRel = seg
			chain = append(chain, accessorStep{kind: stepFollowMany, name: seg})
		} else {
			chain = append(chain, accessorStep{kind: stepFollow, name: seg})
		}

		cur, err = pl.introspector.GetEntity(ctx, field.Relation.Entity)
		if err != nil {
			return nil, "", err
		}
	}

	chain = append(chain, accessorStep{kind: leafStep, name: leaf})
	return chain, fanRel, nil
}

// executeChain walks the accessor chain from a fetched record. fanPK is the
// child primary key of the fanned many-to-many member for this row, nil when
// the chain starts at the root record.
func executeChain(ctx context.Context, obj record.Object, chain []accessorStep, fanPK interface{}) (interface{}, error) {
	cur := obj
	for _, step := range chain {
		if cur == nil {
			return nil, nil
		}
		switch step.kind {
		case stepFollow:
			next, err := cur.Follow(ctx, step.name)
			if err != nil {
				return nil, err
			}
			cur = next
		case stepFollowMany:
			if fanPK == nil {
				return nil, nil
			}
			next, err := cur.FollowMany(ctx, step.name, fanPK)
			if err != nil {
				return nil, err
			}
			cur = next
		case stepReadField:
			v, _ := cur.Field(step.name)
			return v, nil
		case stepReadProperty:
			return cur.Property(ctx, step.name)
		case stepReadCustom:
			return cur.CustomValue(ctx, step.name)
		}
	}
	return nil, nil
}

func leafStepFor(ft FieldType) stepKind {
	switch ft {
	case FieldTypeProperty:
		return stepReadProperty
	case FieldTypeCustom:
		return stepReadCustom
	default:
		return stepReadField
	}
}

// buildPlan classifies every display field, checks related-entity
// permissions, resolves accessor chains, and precomputes the query
// projection. Denied and invalid fields keep their positions as blank
// placeholders.
func buildPlan(ctx context.Context, pl *planner, rootEntity string, fields []DisplayField, filters []FilterField) (*plan, error) {
	p := &plan{width: rowWidth(fields)}

	// Grouping detection: with any group key present, ungrouped plain
	// fields are promoted to Max so grouped queries stay deterministic.
	grouped := false
	for _, df := range fields {
		if df.Group {
			grouped = true
			break
		}
	}

	for _, df := range fields {
		df := df
		if grouped && !df.Group && df.Aggregate == AggregateNone {
			df.Aggregate = AggregateMax
		}
		col := &column{df: df, displayKey: df.DisplayKey(), choices: df.Choices, colType: df.ColumnType}
		p.columns = append(p.columns, col)

		if df.FieldType == FieldTypeInvalid {
			col.invalid = true
			continue
		}

		info, err := pl.introspector.ResolveFields(ctx, rootEntity, df.Path)
		if err != nil {
			col.invalid = true
			p.note("Invalid field %s: %v.", df.QueryKey(), err)
			continue
		}

		ok, err := pl.allowed(ctx, info.Namespace, info.Entity.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			col.denied = true
			p.note("Permission Denied on %s.", df.QueryKey())
			continue
		}

		schemaField := info.Entity.FieldByName(df.Field)
		if schemaField == nil && df.Field != record.PKKey {
			col.invalid = true
			p.note("Invalid field %s: unknown field.", df.QueryKey())
			continue
		}
		if schemaField != nil {
			if col.choices == nil {
				col.choices = schemaField.Choices()
			}
			if col.colType == "" {
				col.colType = schemaField.Type
			}
		}
		switch df.Aggregate {
		case AggregateCount, AggregateSum, AggregateAvg:
			col.colType = entity.TypeNumber
		}

		switch df.FieldType {
		case FieldTypeProperty, FieldTypeCustom:
			chain, fanRel, err := pl.resolveChain(ctx, rootEntity, df.Path, df.Field, leafStepFor(df.FieldType))
			if err != nil {
				col.invalid = true
				p.note("Invalid field %s: %v.", df.QueryKey(), err)
				continue
			}
			col.chain = chain
			col.fanRel = fanRel
			if fanRel != "" {
				p.addFanRel(fanRel)
			}
		default:
			if df.Group {
				p.groupKeys = append(p.groupKeys, df.QueryKey())
			}
			if s := df.Aggregate.Suffix(); s != "" {
				p.aggs = append(p.aggs, record.Aggregation{Key: df.QueryKey(), Func: s})
			}
		}
	}

	for _, ff := range filters {
		if !ff.InProcess() {
			continue
		}
		fp := &filterPlan{ff: ff}
		chain, fanRel, err := pl.resolveChain(ctx, rootEntity, ff.Path, ff.Field, leafStepFor(ff.FieldType))
		if err != nil {
			fp.invalid = true
			p.note("Invalid filter %s: %v.", ff.QueryKey(), err)
		} else {
			fp.chain = chain
			fp.fanRel = fanRel
			if fanRel != "" {
				p.addFanRel(fanRel)
			}
		}
		p.inFilters = append(p.inFilters, fp)
	}

	return p, nil
}

// ResolveDisplayFields turns string-form field specs into display fields for
// ad-hoc exports. Each spec is a path-separated reference whose last segment
// names the leaf field.
func ResolveDisplayFields(ctx context.Context, introspector entity.Introspector, entityName string, specs []string) ([]DisplayField, error) {
	fields := make([]DisplayField, 0, len(specs))
	for i, spec := range specs {
		segments := entity.SplitPath(spec)
		if len(segments) == 0 {
			return nil, fmt.Errorf("%w: empty field spec", entity.ErrUnknownField)
		}
		leaf := segments[len(segments)-1]
		path := ""
		if len(segments) > 1 {
			path = joinPath(segments[:len(segments)-1])
		}

		info, err := introspector.ResolveFields(ctx, entityName, path)
		if err != nil {
			return nil, err
		}

		df := DisplayField{
			Path:      path,
			Field:     leaf,
			Name:      leaf,
			FieldType: FieldTypeField,
			Position:  i,
		}

		if leaf != record.PKKey {
			schemaField := info.Entity.FieldByName(leaf)
			if schemaField == nil {
				return nil, fmt.Errorf("%w: %s has no field %q", entity.ErrUnknownField, info.Entity.Name, leaf)
			}
			switch schemaField.Kind {
			case entity.KindProperty:
				df.FieldType = FieldTypeProperty
			case entity.KindCustom:
				df.FieldType = FieldTypeCustom
			}
			df.Choices = schemaField.Choices()
			df.ColumnType = schemaField.Type
			if schemaField.Label != "" {
				df.Name = schemaField.Label
			}
		}
		fields = append(fields, df)
	}
	return fields, nil
}

func joinPath(segments []string) string {
	out := ""
	for i, seg := range segments {
		if i > 0 {
			out += entity.PathSeparator
		}
		out += seg
	}
	return out
}

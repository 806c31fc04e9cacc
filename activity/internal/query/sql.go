package query

import (
	"fmt"
	"strings"
)

// SQL is a rendered WHERE and ORDER BY pair. Where is empty when nothing filters.
type SQL struct {
	Where   string
	OrderBy string
	Args    []any
}

var opSQL = map[Operator]string{
	OpEq:  "=",
	OpGte: ">=",
	OpLte: "<=",
	OpLt:  "<",
}

// BuildSQL renders spec with positional arguments starting at $1. Field
// names were validated by Parse against the static attribute table, so they
// are safe to interpolate as column names.
func BuildSQL(spec Spec) SQL {
	var (
		clauses []string
		args    []any
	)

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, c := range spec.Conditions {
		clauses = append(clauses, fmt.Sprintf("%s %s %s", c.Field, opSQL[c.Op], next(c.Value)))
	}

	if spec.Search != "" && len(spec.SearchFields) > 0 {
		p := next("%" + escapeLike(spec.Search) + "%")
		ors := make([]string, len(spec.SearchFields))
		for i, f := range spec.SearchFields {
			ors[i] = fmt.Sprintf("%s ILIKE %s", f, p)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	out := SQL{Args: args}
	if len(clauses) > 0 {
		out.Where = "WHERE " + strings.Join(clauses, " AND ")
	}

	orders := spec.Orders()
	parts := make([]string, 0, len(orders)+1)
	for _, o := range orders {
		col := o.Field
		if o.Fold {
			col = "LOWER(" + col + ")"
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	// id keeps paging stable across equal sort keys.
	parts = append(parts, "id ASC")
	out.OrderBy = "ORDER BY " + strings.Join(parts, ", ")

	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

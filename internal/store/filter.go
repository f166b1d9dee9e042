package store

import "strings"

// clause is one typed predicate with its bound arguments. Filters are
// compiled to a clause list exactly once per request so the count query
// and the page query can never disagree on the predicate set.
type clause struct {
	expr string
	args []any
}

// clauses compiles the filter into AND-combined predicates. The search
// term expands to an OR across title and description inside a single
// clause. All values are bound parameters.
func (f IssueFilter) clauses() []clause {
	var cs []clause

	if f.Status != "" {
		cs = append(cs, clause{expr: "i.status = ?", args: []any{string(f.Status)}})
	}
	if f.Priority != "" {
		cs = append(cs, clause{expr: "i.priority = ?", args: []any{string(f.Priority)}})
	}
	if f.Severity != "" {
		cs = append(cs, clause{expr: "i.severity = ?", args: []any{string(f.Severity)}})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		cs = append(cs, clause{
			expr: "(i.title LIKE ? OR i.description LIKE ?)",
			args: []any{pattern, pattern},
		})
	}
	return cs
}

// whereSQL renders a clause list to a WHERE fragment (empty when there
// are no clauses) and the flattened argument list.
func whereSQL(cs []clause) (string, []any) {
	if len(cs) == 0 {
		return "", nil
	}
	exprs := make([]string, len(cs))
	var args []any
	for i, c := range cs {
		exprs[i] = c.expr
		args = append(args, c.args...)
	}
	return " WHERE " + strings.Join(exprs, " AND "), args
}

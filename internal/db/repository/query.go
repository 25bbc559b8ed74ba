package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/nopeoplecar/uvdispatch/internal/errs"
)

// buildWhere assembles the WHERE clause and its positional args from the
// condition categories in p. Categories are AND-combined; within a
// category, keys are sorted for deterministic SQL (helps query-plan
// caching and makes tests reproducible). Empty categories are omitted.
func buildWhere(p QueryAdvancedParams, startArg int) (clause string, args []any, nextArg int) {
	var clauses []string
	n := startArg

	for _, k := range sortedKeys(p.Equals) {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", k, n))
		args = append(args, p.Equals[k])
		n++
	}
	for _, k := range sortedKeysRange(p.Ranges) {
		r := p.Ranges[k]
		clauses = append(clauses, fmt.Sprintf("%s BETWEEN $%d AND $%d", k, n, n+1))
		args = append(args, r[0], r[1])
		n += 2
	}
	for _, k := range sortedKeysStr(p.Fuzzies) {
		clauses = append(clauses, fmt.Sprintf("%s LIKE $%d", k, n))
		args = append(args, "%"+p.Fuzzies[k]+"%")
		n++
	}
	for _, k := range sortedKeysSlice(p.Ins) {
		vals := p.Ins[k]
		if len(vals) == 0 {
			continue
		}
		placeholders := make([]string, len(vals))
		for i := range vals {
			placeholders[i] = fmt.Sprintf("$%d", n)
			args = append(args, vals[i])
			n++
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", k, strings.Join(placeholders, ", ")))
	}
	if p.Raw != "" {
		raw := p.Raw
		for range p.RawArgs {
			raw = strings.Replace(raw, "?", fmt.Sprintf("$%d", n), 1)
			n++
		}
		clauses = append(clauses, "("+raw+")")
		args = append(args, p.RawArgs...)
	}

	if len(clauses) == 0 {
		return "", nil, n
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, n
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysStr(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysSlice(m map[string][]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysRange(m map[string][2]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// queryPage runs a paged, advanced query against table, selecting columns,
// and also counts the total matching rows. Paging requires an explicit
// order-by; its absence is a BadQuery, since an unordered LIMIT/OFFSET
// over Postgres gives no stable page boundaries.
func queryPage(ctx context.Context, db *sql.DB, table, columns string, p QueryAdvancedParams, page, pageSize int) (*sql.Rows, int, error) {
	if p.OrderBy == "" {
		return nil, 0, fmt.Errorf("%w: QueryPage requires an order-by", errs.ErrBadQuery)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return nil, 0, fmt.Errorf("%w: page size must be positive", errs.ErrBadQuery)
	}

	where, args, next := buildWhere(p, 1)

	countQuery := fmt.Sprintf("SELECT count(*) FROM %s%s", table, where)
	var total int
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM %s%s", columns, table, where)
	if p.GroupBy != "" {
		q += " GROUP BY " + p.GroupBy
	}
	q += " ORDER BY " + p.OrderBy
	q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", next, next+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query page: %w", err)
	}
	return rows, total, nil
}

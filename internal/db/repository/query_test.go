package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildWhereCombinesCategories(t *testing.T) {
	p := QueryAdvancedParams{
		Equals:  map[string]any{"status": 0},
		Ranges:  map[string][2]any{"created_at": {"2026-01-01", "2026-02-01"}},
		Fuzzies: map[string]string{"order_no": "ORD"},
		Ins:     map[string][]any{"order_type_code": {101, 102}},
		Raw:     "merchant_id = ? OR merchant_id = ?",
		RawArgs: []any{1, 2},
	}
	clause, args, next := buildWhere(p, 1)

	assert.Contains(t, clause, "status = $1")
	assert.Contains(t, clause, "created_at BETWEEN $2 AND $3")
	assert.Contains(t, clause, "order_no LIKE $4")
	assert.Contains(t, clause, "order_type_code IN ($5, $6)")
	assert.Contains(t, clause, "(merchant_id = $7 OR merchant_id = $8)")
	assert.Len(t, args, 8)
	assert.Equal(t, 9, next)
}

func TestBuildWhereEmptyCategoriesOmitted(t *testing.T) {
	clause, args, next := buildWhere(QueryAdvancedParams{}, 1)
	assert.Empty(t, clause)
	assert.Empty(t, args)
	assert.Equal(t, 1, next)
}

func TestBuildWhereSkipsEmptyInList(t *testing.T) {
	p := QueryAdvancedParams{Ins: map[string][]any{"status": {}}}
	clause, args, _ := buildWhere(p, 1)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

package adevents

import (
	"errors"
	"fmt"
	"strings"
)

// Op is a comparison operator usable in a query condition.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "<>"
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpIn  Op = "IN"
)

// Condition is one typed column/operator/value filter. Conditions replace raw
// SQL fragment composition: the column is checked against the table's column
// set and the value is always bound as a parameter.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

var (
	ErrUnknownColumn   = errors.New("unknown column")
	ErrUnknownOperator = errors.New("unknown operator")
	ErrEmptyInList     = errors.New("empty IN list")
)

// allowedColumns is the ad_events column set queryable through conditions.
var allowedColumns = map[string]struct{}{
	"placement_id":         {},
	"ad_type":              {},
	"confirmation_type":    {},
	"campaign_id":          {},
	"creative_set_id":      {},
	"creative_instance_id": {},
	"advertiser_id":        {},
	"created_at":           {},
}

// buildWhere compiles conditions into a parameterized WHERE clause. startArg
// is the first placeholder ordinal to use. An empty condition list compiles to
// an empty clause.
func buildWhere(conds []Condition, startArg int) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}

	var parts []string
	var args []any
	arg := startArg

	for _, c := range conds {
		if _, ok := allowedColumns[c.Column]; !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c.Column)
		}

		switch c.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
			parts = append(parts, fmt.Sprintf("%s %s $%d", c.Column, c.Op, arg))
			args = append(args, c.Value)
			arg++
		case OpIn:
			values, ok := c.Value.([]any)
			if !ok || len(values) == 0 {
				return "", nil, fmt.Errorf("%w: column %q", ErrEmptyInList, c.Column)
			}
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = fmt.Sprintf("$%d", arg)
				args = append(args, v)
				arg++
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", c.Column, strings.Join(placeholders, ", ")))
		default:
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Op)
		}
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

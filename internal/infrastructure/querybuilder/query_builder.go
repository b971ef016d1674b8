package querybuilder

import (
	"fmt"
	"strings"
)

// Operator represents SQL comparison operators
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	ILike
)

// Direction represents sort direction
type Direction int

const (
	Asc Direction = iota
	Desc
)

type condition struct {
	column string
	op     Operator
	value  interface{}

	// raw conditions render verbatim with %d placeholders substituted by
	// the next parameter index; used for grouped OR clauses.
	raw       string
	rawValues []interface{}
}

// SelectBuilder assembles a parameterized SELECT statement. Conditions are
// combined with AND; grouped alternatives go through WhereAnyILike. Only
// reads are built dynamically, the write paths use fixed statements.
type SelectBuilder struct {
	columns []string
	table   string
	joins   []string
	conds   []condition
	orderBy []string
	limit   *int
	offset  *int
}

// Select starts a SELECT query over the given columns.
func Select(columns ...string) *SelectBuilder {
	return &SelectBuilder{columns: columns}
}

// From sets the table, optionally aliased ("auctions a").
func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.table = table
	return b
}

// Join adds an INNER JOIN.
func (b *SelectBuilder) Join(table, on string) *SelectBuilder {
	b.joins = append(b.joins, fmt.Sprintf("JOIN %s ON %s", table, on))
	return b
}

// Where adds one AND condition.
func (b *SelectBuilder) Where(column string, op Operator, value interface{}) *SelectBuilder {
	b.conds = append(b.conds, condition{column: column, op: op, value: value})
	return b
}

// WhereEqual is a convenience for equality conditions.
func (b *SelectBuilder) WhereEqual(column string, value interface{}) *SelectBuilder {
	return b.Where(column, Equal, value)
}

// WhereAnyILike adds a grouped case-insensitive substring match over several
// columns, sharing a single parameter: (a ILIKE $n OR b ILIKE $n).
func (b *SelectBuilder) WhereAnyILike(term string, columns ...string) *SelectBuilder {
	if len(columns) == 0 {
		return b
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = col + " ILIKE %[1]s"
	}
	b.conds = append(b.conds, condition{
		raw:       "(" + strings.Join(parts, " OR ") + ")",
		rawValues: []interface{}{"%" + term + "%"},
	})
	return b
}

// OrderBy appends an ORDER BY clause.
func (b *SelectBuilder) OrderBy(column string, dir Direction) *SelectBuilder {
	d := "ASC"
	if dir == Desc {
		d = "DESC"
	}
	b.orderBy = append(b.orderBy, column+" "+d)
	return b
}

// Limit sets the LIMIT clause.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the OFFSET clause.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// ToSQL generates the SQL text and its positional parameters.
func (b *SelectBuilder) ToSQL() (string, []interface{}, error) {
	if b.table == "" {
		return "", nil, fmt.Errorf("table name is required")
	}
	if len(b.columns) == 0 {
		return "", nil, fmt.Errorf("at least one column is required")
	}

	var query strings.Builder
	var params []interface{}
	paramIndex := 1

	query.WriteString("SELECT ")
	query.WriteString(strings.Join(b.columns, ", "))
	query.WriteString(" FROM ")
	query.WriteString(b.table)

	for _, join := range b.joins {
		query.WriteString(" ")
		query.WriteString(join)
	}

	if len(b.conds) > 0 {
		query.WriteString(" WHERE ")
		clauses := make([]string, 0, len(b.conds))
		for _, c := range b.conds {
			if c.raw != "" {
				clauses = append(clauses, fmt.Sprintf(c.raw, fmt.Sprintf("$%d", paramIndex)))
				params = append(params, c.rawValues...)
				paramIndex += len(c.rawValues)
				continue
			}
			op, err := operatorString(c.op)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", c.column, op, paramIndex))
			params = append(params, c.value)
			paramIndex++
		}
		query.WriteString(strings.Join(clauses, " AND "))
	}

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limit != nil {
		query.WriteString(fmt.Sprintf(" LIMIT $%d", paramIndex))
		params = append(params, *b.limit)
		paramIndex++
	}
	if b.offset != nil {
		query.WriteString(fmt.Sprintf(" OFFSET $%d", paramIndex))
		params = append(params, *b.offset)
	}

	return query.String(), params, nil
}

func operatorString(op Operator) (string, error) {
	switch op {
	case Equal:
		return "=", nil
	case NotEqual:
		return "<>", nil
	case GreaterThan:
		return ">", nil
	case GreaterThanOrEqual:
		return ">=", nil
	case LessThan:
		return "<", nil
	case LessThanOrEqual:
		return "<=", nil
	case ILike:
		return "ILIKE", nil
	default:
		return "", fmt.Errorf("unknown operator %d", op)
	}
}

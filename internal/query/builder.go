package query

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultBlockSize is the number of elements bound in a single IN list.
	DefaultBlockSize = 512
	// DefaultParameterLimit caps the IN-list parameters of one statement.
	// Postgres allows 65535 bind parameters and SQLite 32766.
	DefaultParameterLimit = 32000
)

// Order is a single ORDER BY term.
type Order struct {
	Column  string
	Reverse bool
}

type Option func(*Builder)

// WithBlockSize sets the IN-list block size. Non-positive values are ignored.
func WithBlockSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.blockSize = n
		}
	}
}

// WithParameterLimit sets the parameter ceiling. Non-positive values are ignored.
func WithParameterLimit(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.paramLimit = n
		}
	}
}

// Builder accumulates predicates, ordering and paging for one statement.
// Errors are recorded as they happen and reported by Apply, so a builder with
// an invalid order key or oversized IN list never reaches the database.
type Builder struct {
	fields     mapset.Set[string]
	exprs      []clause.Expression
	orders     []Order
	offset     int
	limit      int
	blockSize  int
	paramLimit int
	params     int
	err        error
}

// New creates a builder that accepts ordering on the given fields.
func New(fields []string, opts ...Option) *Builder {
	b := &Builder{
		fields:     mapset.NewThreadUnsafeSet(fields...),
		blockSize:  DefaultBlockSize,
		paramLimit: DefaultParameterLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BlockSize returns the configured IN-list block size.
func (b *Builder) BlockSize() int {
	return b.blockSize
}

// Err returns the first error recorded by the builder.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) reserve(n int) bool {
	if b.params+n > b.paramLimit {
		b.fail(fmt.Errorf("%w: %d parameters requested, limit is %d", ErrStateSizeLimitExceeded, b.params+n, b.paramLimit))
		return false
	}
	b.params += n
	return true
}

// Where adds a predicate fragment. The SQL must only contain trusted
// identifiers; values go through args.
func (b *Builder) Where(sql string, args ...any) *Builder {
	if !b.reserve(countParams(args)) {
		return b
	}
	b.exprs = append(b.exprs, clause.Expr{SQL: sql, Vars: args})
	return b
}

// Expr adds a prebuilt expression, such as a subquery predicate. Its
// arguments count against the parameter limit like those of Where.
func (b *Builder) Expr(expr clause.Expr) *Builder {
	if !b.reserve(countParams(expr.Vars)) {
		return b
	}
	b.exprs = append(b.exprs, expr)
	return b
}

// In restricts column to values. Values are bound in blocks joined by OR.
// An empty list matches nothing.
func (b *Builder) In(column string, values []string) *Builder {
	if len(values) == 0 {
		b.exprs = append(b.exprs, clause.Expr{SQL: "1 = 0"})
		return b
	}
	if !b.reserve(len(values)) {
		return b
	}

	blocks := Partition(values, b.blockSize)
	exprs := make([]clause.Expression, 0, len(blocks))
	for _, block := range blocks {
		exprs = append(exprs, clause.IN{Column: Column(column), Values: toAny(block)})
	}
	b.exprs = append(b.exprs, clause.Or(exprs...))
	return b
}

// NotIn excludes values from column. Blocks are joined by AND.
// An empty list is a no-op.
func (b *Builder) NotIn(column string, values []string) *Builder {
	if len(values) == 0 {
		return b
	}
	if !b.reserve(len(values)) {
		return b
	}

	blocks := Partition(values, b.blockSize)
	exprs := make([]clause.Expression, 0, len(blocks))
	for _, block := range blocks {
		exprs = append(exprs, clause.Not(clause.IN{Column: Column(column), Values: toAny(block)}))
	}
	b.exprs = append(b.exprs, clause.And(exprs...))
	return b
}

// OrderBy appends ordering terms. Every column must be a known field.
func (b *Builder) OrderBy(orders ...Order) *Builder {
	for _, o := range orders {
		if !b.fields.Contains(o.Column) {
			return b.fail(fmt.Errorf("%w: %q", ErrInvalidOrderKey, o.Column))
		}
		b.orders = append(b.orders, o)
	}
	return b
}

func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.fail(fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, n))
	}
	b.offset = n
	return b
}

func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.fail(fmt.Errorf("%w: negative limit %d", ErrInvalidArgument, n))
	}
	b.limit = n
	return b
}

// Page sets offset and limit from a 1-based page number and a page size.
func (b *Builder) Page(page, pageSize int) *Builder {
	if page < 1 || pageSize < 1 {
		return b.fail(fmt.Errorf("%w: page %d and page size %d must both be positive", ErrInvalidArgument, page, pageSize))
	}
	b.offset = (page - 1) * pageSize
	b.limit = pageSize
	return b
}

// Filters applies the predicates only, for counting.
func (b *Builder) Filters(db *gorm.DB) (*gorm.DB, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, expr := range b.exprs {
		db = db.Where(expr)
	}
	return db, nil
}

// Apply applies predicates, ordering and paging.
func (b *Builder) Apply(db *gorm.DB) (*gorm.DB, error) {
	db, err := b.Filters(db)
	if err != nil {
		return nil, err
	}
	for _, o := range b.orders {
		db = db.Order(clause.OrderByColumn{Column: Column(o.Column), Desc: o.Reverse})
	}
	if b.offset > 0 {
		db = db.Offset(b.offset)
	}
	if b.limit > 0 {
		db = db.Limit(b.limit)
	}
	return db, nil
}

// Column converts "table.column" or "column" into a quoted clause column.
func Column(name string) clause.Column {
	if table, col, ok := strings.Cut(name, "."); ok {
		return clause.Column{Table: table, Name: col}
	}
	return clause.Column{Name: name}
}

// Partition splits values into consecutive blocks of at most size elements.
func Partition[T any](values []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBlockSize
	}
	blocks := make([][]T, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		blocks = append(blocks, values[start:end])
	}
	return blocks
}

// CheckLimit fails with ErrStateSizeLimitExceeded when n exceeds limit.
func CheckLimit(n, limit int) error {
	if limit <= 0 {
		limit = DefaultParameterLimit
	}
	if n > limit {
		return fmt.Errorf("%w: %d parameters requested, limit is %d", ErrStateSizeLimitExceeded, n, limit)
	}
	return nil
}

// InSQL renders "(column IN ? OR column IN ? ...)" for raw statements, with
// one slice argument per block. column must be a trusted identifier.
func InSQL(column string, values []string, blockSize int) (string, []any) {
	blocks := Partition(values, blockSize)
	if len(blocks) == 0 {
		return "1 = 0", nil
	}
	parts := make([]string, len(blocks))
	args := make([]any, len(blocks))
	for i, block := range blocks {
		parts[i] = column + " IN ?"
		args[i] = block
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func countParams(args []any) int {
	n := 0
	for _, arg := range args {
		if s, ok := arg.([]string); ok {
			n += len(s)
			continue
		}
		n++
	}
	return n
}

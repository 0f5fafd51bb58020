package sqltool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrorKind classifies a query failure for the repair loop.
type ErrorKind string

const (
	ErrSyntax        ErrorKind = "syntax_error"
	ErrMissingTable  ErrorKind = "missing_table"
	ErrMissingColumn ErrorKind = "missing_column"
	ErrForbidden     ErrorKind = "forbidden_statement"
	ErrTimeout       ErrorKind = "timeout"
	ErrUnknown       ErrorKind = "unknown"
)

// QueryError is the structured failure returned by Execute. Its message text
// is what gets fed back into SQL regeneration.
type QueryError struct {
	Kind    ErrorKind
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// QueryResult holds the full result set of a successful query. Columns
// preserves the SELECT column order; each row maps column name to value.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// forbiddenStmt matches mutating keywords anywhere in the statement. Matching
// statements are rejected before they reach the database.
var forbiddenStmt = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|attach)\b`)

// Executor runs read-only queries against the retail dataset with a bounded
// timeout per query. The underlying *sql.DB is safe for concurrent use.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	logger  *log.Logger
}

// Open opens the SQLite database at path in read-only mode.
func Open(path string, timeout time.Duration, logger *log.Logger) (*Executor, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return New(db, timeout, logger), nil
}

// New wraps an existing database handle. Used by tests and by Open.
func New(db *sql.DB, timeout time.Duration, logger *log.Logger) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Executor{
		db:      db,
		timeout: timeout,
		logger:  logger,
	}
}

// Close releases the database handle.
func (e *Executor) Close() error {
	return e.db.Close()
}

// Execute runs one SQL statement and returns either the full result set or a
// *QueryError. Statements containing mutating keywords are rejected without
// touching the database. An empty statement is a syntax error, not a skip.
func (e *Executor) Execute(ctx context.Context, query string) (*QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &QueryError{Kind: ErrSyntax, Message: "empty SQL statement"}
	}
	if m := forbiddenStmt.FindString(query); m != "" {
		e.logger.Printf("[EXECUTOR] Rejected forbidden statement (keyword %q)", m)
		return nil, &QueryError{
			Kind:    ErrForbidden,
			Message: fmt.Sprintf("statement contains forbidden keyword %q", strings.ToUpper(m)),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(err)
	}

	result := &QueryResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	e.logger.Printf("[EXECUTOR] Query ok: %d rows, %d columns", len(result.Rows), len(cols))
	return result, nil
}

// classify maps a driver error onto the repair-loop taxonomy by inspecting
// the SQLite message text.
func classify(err error) *QueryError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &QueryError{Kind: ErrTimeout, Message: "query exceeded execution timeout"}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such table"):
		return &QueryError{Kind: ErrMissingTable, Message: msg}
	case strings.Contains(lower, "no such column"):
		return &QueryError{Kind: ErrMissingColumn, Message: msg}
	case strings.Contains(lower, "syntax error"), strings.Contains(lower, "incomplete input"):
		return &QueryError{Kind: ErrSyntax, Message: msg}
	default:
		return &QueryError{Kind: ErrUnknown, Message: msg}
	}
}

package api

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-fire/internal/db"
)

// DBHandler serves the DuckDB mirror of the ignition records: its table
// summary, read-only SQL and per-municipality counts.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a handler over conn, which may be nil.
func NewDBHandler(conn *sql.DB) *DBHandler {
	return &DBHandler{db: conn}
}

// RegisterRoutes registers the mirror routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("db")
	huma.Get(api, "/api/v1/tables", h.ListTables, tags)
	huma.Post(api, "/api/v1/query", h.Query, tags)
	huma.Get(api, "/api/v1/ignitions/municipalities", h.Municipalities, tags)
}

// Table describes one mirrored table.
type Table struct {
	Name    string   `json:"name" example:"ignitions"`
	Rows    int      `json:"rows" doc:"Row count"`
	Columns []string `json:"columns" doc:"Column names in table order"`
}

type TablesOutput struct {
	Body struct {
		Tables []Table `json:"tables" doc:"Mirrored tables"`
	}
}

// mirrored lists the tables the importer writes; nothing else is exposed.
var mirrored = []string{db.IgnitionsTable}

// ListTables summarises the mirrored tables that exist.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("database not available")
	}
	out := &TablesOutput{}
	out.Body.Tables = []Table{}
	for _, name := range mirrored {
		var rows int
		if err := h.db.QueryRowContext(ctx, "SELECT count(*) FROM "+name).Scan(&rows); err != nil {
			// Not imported yet.
			continue
		}
		res, err := h.run(ctx,
			"SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position", name)
		if err != nil {
			return nil, huma.Error500InternalServerError("listing columns failed", err)
		}
		t := Table{Name: name, Rows: rows, Columns: []string{}}
		for _, r := range res.Rows {
			t.Columns = append(t.Columns, fmt.Sprint(r["column_name"]))
		}
		out.Body.Tables = append(out.Body.Tables, t)
	}
	return out, nil
}

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"Read-only SQL: a single SELECT or WITH statement" example:"SELECT year, count(*) AS n FROM ignitions GROUP BY year ORDER BY year"`
	}
}

// Result is a tabular query result.
type Result struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

type QueryOutput struct {
	Body Result
}

var (
	selectStmt = regexp.MustCompile(`(?is)^\s*(select|with)\b`)
	// Table functions and statements that reach outside the mirror.
	forbidden = regexp.MustCompile(`(?i)\b(read_\w+|glob|sniff_csv|parquet_\w+|copy|attach|detach|install|load|pragma|export|import|set|reset|call)\b`)
)

// checkReadOnly accepts a single SELECT or WITH statement that uses no
// file or catalogue functions.
func checkReadOnly(q string) error {
	q = strings.TrimRight(strings.TrimSpace(q), ";")
	switch {
	case !selectStmt.MatchString(q):
		return fmt.Errorf("only SELECT queries are allowed")
	case strings.Contains(q, ";"):
		return fmt.Errorf("only one statement is allowed")
	}
	if m := forbidden.FindString(q); m != "" {
		return fmt.Errorf("%s is not allowed", strings.ToLower(m))
	}
	return nil
}

// Query runs one read-only statement against the mirror.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if err := checkReadOnly(input.Body.Query); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("database not available")
	}
	res, err := h.run(ctx, strings.TrimRight(strings.TrimSpace(input.Body.Query), ";"))
	if err != nil {
		return nil, huma.Error400BadRequest("query failed: " + err.Error())
	}
	return &QueryOutput{Body: res}, nil
}

type MunicipalityInput struct {
	Year int `query:"year" doc:"Only count this year, 0 for every year" example:"2003"`
}

// Municipalities counts mirrored ignitions per municipality, busiest first.
func (h *DBHandler) Municipalities(ctx context.Context, input *MunicipalityInput) (*QueryOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("database not available")
	}
	res, err := h.run(ctx, `SELECT coalesce(municipality, '') AS municipality, count(*) AS ignitions
		FROM ignitions WHERE ? = 0 OR year = ?
		GROUP BY 1 ORDER BY 2 DESC, 1`, input.Year, input.Year)
	if err != nil {
		return nil, huma.Error500InternalServerError("counting municipalities failed", err)
	}
	return &QueryOutput{Body: res}, nil
}

// run collects every row of q into a Result.
func (h *DBHandler) run(ctx context.Context, q string, args ...any) (Result, error) {
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	res := Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	res.Count = len(res.Rows)
	return res, nil
}

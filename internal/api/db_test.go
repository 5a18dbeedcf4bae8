package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-fire/internal/db"
)

func dbAPI(t *testing.T) humatest.TestAPI {
	t.Helper()
	svc := testServices(t)
	conn, err := db.Open(db.Config{Sealed: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = db.ImportIgnitions(context.Background(), conn, svc.Ignitions)
	require.NoError(t, err)

	_, api := humatest.New(t)
	NewDBHandler(conn).RegisterRoutes(api)
	return api
}

func TestTables(t *testing.T) {
	api := dbAPI(t)

	resp := api.Get("/api/v1/tables")
	require.Equal(t, http.StatusOK, resp.Code)
	var body TablesOutput
	decode(t, resp.Body.Bytes(), &body.Body)
	require.Len(t, body.Body.Tables, 1)
	tbl := body.Body.Tables[0]
	assert.Equal(t, "ignitions", tbl.Name)
	assert.Equal(t, 3, tbl.Rows)
	assert.Equal(t, "year", tbl.Columns[0])
	assert.Contains(t, tbl.Columns, "municipality")
}

func TestQuery(t *testing.T) {
	api := dbAPI(t)

	resp := api.Post("/api/v1/query", map[string]any{
		"query": "SELECT year, count(*) AS n FROM ignitions GROUP BY year ORDER BY year;",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	var res Result
	decode(t, resp.Body.Bytes(), &res)
	assert.Equal(t, []string{"year", "n"}, res.Columns)
	require.Equal(t, 2, res.Count)
	assert.EqualValues(t, 2003, res.Rows[0]["year"])
	assert.EqualValues(t, 2, res.Rows[0]["n"])

	for _, q := range []string{
		"DROP TABLE ignitions",
		"SELECT 1; DROP TABLE ignitions",
		"SELECT * FROM read_text('/etc/hostname')",
		"SELECT * FROM read_csv_auto('x.csv')",
		"WITH t AS (SELECT 1) SELECT * FROM glob('*')",
	} {
		assert.Equal(t, http.StatusBadRequest, api.Post("/api/v1/query", map[string]any{"query": q}).Code, q)
	}

	// String paths are replacement scans; the sealed connection refuses them.
	resp = api.Post("/api/v1/query", map[string]any{"query": "SELECT * FROM '/etc/hostname'"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMunicipalities(t *testing.T) {
	api := dbAPI(t)

	resp := api.Get("/api/v1/ignitions/municipalities")
	require.Equal(t, http.StatusOK, resp.Code)
	var res Result
	decode(t, resp.Body.Bytes(), &res)
	assert.Equal(t, []string{"municipality", "ignitions"}, res.Columns)
	require.Equal(t, 1, res.Count, "fixture ignitions carry no municipality")
	assert.EqualValues(t, 3, res.Rows[0]["ignitions"])

	resp = api.Get("/api/v1/ignitions/municipalities?year=2010")
	require.Equal(t, http.StatusOK, resp.Code)
	decode(t, resp.Body.Bytes(), &res)
	assert.EqualValues(t, 1, res.Rows[0]["ignitions"])
}

func TestDBUnavailable(t *testing.T) {
	_, api := humatest.New(t)
	NewDBHandler(nil).RegisterRoutes(api)

	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/tables").Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/ignitions/municipalities").Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		api.Post("/api/v1/query", map[string]any{"query": "SELECT 1"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		api.Post("/api/v1/query", map[string]any{"query": "DELETE FROM ignitions"}).Code)
}

func TestCheckReadOnly(t *testing.T) {
	assert.NoError(t, checkReadOnly("  select offset_m FROM ignitions ; "))
	assert.EqualError(t, checkReadOnly("PRAGMA version"), "only SELECT queries are allowed")
	assert.EqualError(t, checkReadOnly("SELECT * FROM t; SELECT 2"), "only one statement is allowed")
	assert.EqualError(t, checkReadOnly("SELECT current_setting('threads'), LOAD"), "load is not allowed")
}

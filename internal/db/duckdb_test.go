package db

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-fire/internal/ignition"
	"github.com/joeblew999/plat-fire/internal/mapconfig"
)

func index(t *testing.T) *ignition.Index {
	t.Helper()
	cfg, err := mapconfig.Default()
	require.NoError(t, err)

	fc := geojson.NewFeatureCollection()
	for _, p := range []map[string]any{
		{"anos": 2003.0, "Concelho": "Arcos de Valdevez", "DataHoraAl": 1508077800000.0},
		{"anos": 2003.0, "concelho": "Melgaço"},
		{"anos": 2023.0, "TipoCausa": "Negligente"},
		{"anos": 1999.0},
	} {
		f := geojson.NewFeature(orb.Point{-8.4, 41.9})
		f.Properties = p
		fc.Append(f)
	}
	return ignition.New(fc, cfg.Ignitions, cfg.NotAvailable)
}

func TestImportIgnitions(t *testing.T) {
	conn, err := Open(Config{})
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	n, err := ImportIgnitions(ctx, conn, index(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n, "years outside the range are not imported")

	var count int
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT count(*) FROM ignitions WHERE year = 2003").Scan(&count))
	assert.Equal(t, 2, count)

	var names []string
	rows, err := conn.QueryContext(ctx,
		"SELECT municipality FROM ignitions WHERE municipality IS NOT NULL ORDER BY municipality")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		names = append(names, s)
	}
	assert.Equal(t, []string{"Arcos de Valdevez", "Melgaço"}, names)

	// Reimporting replaces the table.
	n, err = ImportIgnitions(ctx, conn, index(t))
	require.NoError(t, err)
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT count(*) FROM ignitions").Scan(&count))
	assert.Equal(t, n, count)
}

func TestText(t *testing.T) {
	props := map[string]any{"concelho": "Ponte de Lima", "n": 3.0}
	assert.Equal(t, "Ponte de Lima", text(props, "Concelho", "concelho").String)
	assert.Equal(t, "3", text(props, "n").String)
	assert.False(t, text(props, "missing").Valid)
}

func TestOpenSealed(t *testing.T) {
	conn, err := Open(Config{Sealed: true})
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	_, err = ImportIgnitions(ctx, conn, index(t))
	require.NoError(t, err)

	_, err = conn.QueryContext(ctx, "SELECT * FROM read_text('/etc/hostname')")
	assert.Error(t, err)
}

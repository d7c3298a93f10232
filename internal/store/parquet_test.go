package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsync/internal/domain"
)

func TestParquetSinkPath(t *testing.T) {
	ps := NewParquetSink("/data", "facebook_ads")

	got := ps.partitionPath(jul(15))
	want := filepath.Join("/data", "facebook_ads", "date=2024-07-15.parquet")
	assert.Equal(t, want, got)
}

func TestParquetSinkMissingTable(t *testing.T) {
	ps := NewParquetSink(t.TempDir(), "facebook_ads")
	ctx := context.Background()

	_, _, err := ps.MaxDate(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTableNotFound))

	_, err = ps.AppendRows(ctx, []domain.MetricRow{testRow("a1", jul(1), "1")})
	assert.True(t, errors.Is(err, ErrTableNotFound))
}

func TestParquetSinkRoundTrip(t *testing.T) {
	ps := NewParquetSink(t.TempDir(), "facebook_ads")
	ctx := context.Background()
	require.NoError(t, ps.EnsureTable(ctx))

	_, ok, err := ps.MaxDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := ps.AppendRows(ctx, []domain.MetricRow{
		testRow("a1", jul(2), "1.00"),
		testRow("a2", jul(2), "2.00"),
		testRow("a1", jul(3), "3.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// A second append to an existing partition adds to it.
	n, err = ps.AppendRows(ctx, []domain.MetricRow{testRow("a3", jul(3), "4.00")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := ps.CountRows(ctx, span(jul(3), jul(3)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	latest, ok, err := ps.MaxDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, jul(3), latest)

	recent, err := ps.RecentDates(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{jul(3)}, recent)

	sum, err := ps.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, jul(2), sum.Earliest)
	assert.Equal(t, jul(3), sum.Latest)
	assert.Equal(t, int64(2), sum.Days)
	assert.Equal(t, int64(4), sum.Rows)
	assert.InDelta(t, 10.0, sum.TotalSpend, 1e-9)

	deleted, err := ps.DeleteRows(ctx, span(jul(3), jul(10)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	in, err := ps.DatesInRange(ctx, span(jul(1), jul(31)))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{jul(2)}, in)
}

func TestParquetSinkIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetSink(dir, "facebook_ads")
	ctx := context.Background()
	require.NoError(t, ps.EnsureTable(ctx))

	tableDir := filepath.Join(dir, "facebook_ads")
	require.NoError(t, os.WriteFile(filepath.Join(tableDir, "README"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tableDir, "date=garbage.parquet"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tableDir, "date=2024-07-09.parquet.tmp"), []byte("x"), 0o644))

	dates, err := ps.RecentDates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestParquetSinkAppendStopsAtFailedDay(t *testing.T) {
	ps := NewParquetSink(t.TempDir(), "facebook_ads")
	ctx := context.Background()
	require.NoError(t, ps.EnsureTable(ctx))

	// A non-empty directory where the jul(3) temp file goes makes that write fail.
	blocker := ps.partitionPath(jul(3)) + ".tmp"
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0o755))

	n, err := ps.AppendRows(ctx, []domain.MetricRow{
		testRow("a1", jul(5), "1"),
		testRow("a1", jul(1), "1"),
		testRow("a1", jul(3), "1"),
		testRow("a2", jul(1), "1"),
		testRow("a1", jul(2), "1"),
		testRow("a1", jul(4), "1"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-07-03")
	assert.Equal(t, int64(3), n)

	dates, err := ps.DatesInRange(ctx, span(jul(1), jul(5)))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{jul(1), jul(2)}, dates)
}

package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()

	r.Chunk(OutcomeOK)
	r.Chunk(OutcomeOK)
	r.Chunk(OutcomeTimeout)
	r.Rows("inserted", 40)
	r.Rows("inserted", 2)
	r.Rows("filtered", 0)
	r.Planned("daily", 8)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.chunks.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.chunks.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.rows.WithLabelValues("inserted")))
	assert.Equal(t, 8.0, testutil.ToFloat64(r.plannedDays.WithLabelValues("daily")))
}

func TestRecorderFinished(t *testing.T) {
	r := NewRecorder()

	r.Finished("backfill", time.Now().Add(-time.Second), false)
	assert.Equal(t, 0, testutil.CollectAndCount(r.lastSuccess))
	assert.GreaterOrEqual(t, testutil.ToFloat64(r.duration.WithLabelValues("backfill")), 1.0)

	r.Finished("daily", time.Now(), true)
	assert.Equal(t, 1, testutil.CollectAndCount(r.lastSuccess))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Chunk(OutcomeSinkError)

	path := filepath.Join(t.TempDir(), "adsync.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `adsync_chunks_total{outcome="sink_error"} 1`)
}

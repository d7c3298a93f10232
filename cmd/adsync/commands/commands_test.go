package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsync/internal/gather"
	"adsync/internal/store"
)

// graphServer answers every insights request with one ad-day record per day
// of the requested time_range.
func graphServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var tr struct {
			Since string `json:"since"`
			Until string `json:"until"`
		}
		if err := json.Unmarshal([]byte(r.URL.Query().Get("time_range")), &tr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		since, err1 := civil.ParseDate(tr.Since)
		until, err2 := civil.ParseDate(tr.Until)
		if err1 != nil || err2 != nil {
			http.Error(w, "bad time_range", http.StatusBadRequest)
			return
		}

		data := []map[string]any{}
		for d := since; !d.After(until); d = d.AddDays(1) {
			data = append(data, map[string]any{
				"ad_id":       "a1",
				"date_start":  d.String(),
				"spend":       "2.00",
				"impressions": "10",
				"clicks":      "1",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	configPath string
	dsn        string
	promPath   string
}

func newTestEnv(t *testing.T, baseURL string) testEnv {
	t.Helper()
	for _, k := range []string{
		"ADSYNC_CONFIG", "FB_ACCESS_TOKEN", "FB_AD_ACCOUNT_ID", "FB_API_VERSION",
		"WAREHOUSE_DRIVER", "WAREHOUSE_DSN", "WAREHOUSE_TABLE", "ADSYNC_STATE_DIR", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	env := testEnv{
		configPath: filepath.Join(dir, "adsync.yaml"),
		dsn:        filepath.Join(dir, "ads.db"),
		promPath:   filepath.Join(dir, "adsync.prom"),
	}
	cfg := fmt.Sprintf(`
facebook:
  access_token: test-token
  ad_account_id: "123"
  base_url: %q
  fetch_timeout_seconds: 5
warehouse:
  driver: sqlite
  dsn: %q
sync:
  default_lookback_days: 3
  rewrite_last_n_days: 1
  rate_limit_delay_seconds: 0
logging:
  level: error
metrics:
  textfile_path: %q
state_dir: %q
`, baseURL, env.dsn, env.promPath, filepath.Join(dir, "state"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	return env
}

func execute(args ...string) error {
	return Execute(context.Background(), args)
}

func summary(t *testing.T, dsn string) (rows, days int64) {
	t.Helper()
	sink, err := store.OpenSQLSink(store.SQLite, dsn, "facebook_ads")
	require.NoError(t, err)
	defer sink.Close()
	s, err := sink.Summary(context.Background())
	require.NoError(t, err)
	return s.Rows, s.Days
}

func TestDailyEndToEnd(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, graphServer(t, &calls).URL)

	require.NoError(t, execute("--config", env.configPath, "daily"))
	rows, days := summary(t, env.dsn)
	assert.Equal(t, int64(4), rows)
	assert.Equal(t, int64(4), days)
	assert.Equal(t, int32(1), calls.Load())

	prom, err := os.ReadFile(env.promPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `adsync_chunks_total{outcome="ok"} 1`)

	// The second run only rewrites yesterday.
	require.NoError(t, execute("--config", env.configPath))
	rows, days = summary(t, env.dsn)
	assert.Equal(t, int64(4), rows)
	assert.Equal(t, int64(4), days)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCustomRejectsBadDatesBeforeAnyWork(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, graphServer(t, &calls).URL)

	err := execute("--config", env.configPath, "custom", "2024-13-01", "2024-07-31")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gather.ErrInvalidArgument))

	err = execute("--config", env.configPath, "custom", "2024-07-31", "2024-07-01")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gather.ErrInvalidArgument))

	assert.Zero(t, calls.Load())
	_, statErr := os.Stat(env.dsn)
	assert.True(t, os.IsNotExist(statErr), "the warehouse must not be opened")
}

func TestCustomForce(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, graphServer(t, &calls).URL)

	require.NoError(t, execute("--config", env.configPath, "custom", "2024-07-01", "2024-07-10"))
	rows, _ := summary(t, env.dsn)
	assert.Equal(t, int64(10), rows)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, execute("--config", env.configPath, "custom", "2024-07-01", "2024-07-10", "--force"))
	rows, _ = summary(t, env.dsn)
	assert.Equal(t, int64(10), rows)
	assert.Equal(t, int32(4), calls.Load())

	// --force applies to its own run only.
	require.NoError(t, execute("--config", env.configPath, "custom", "2024-07-01", "2024-07-10"))
	rows, _ = summary(t, env.dsn)
	assert.Equal(t, int64(10), rows)
	assert.Equal(t, int32(4), calls.Load())
}

func TestResetFlags(t *testing.T) {
	require.NoError(t, BackfillCmd.Flags().Set("days", "90"))
	require.NoError(t, CustomCmd.Flags().Set("force", "true"))
	require.NoError(t, RootCmd.PersistentFlags().Set("config", "stale.yaml"))

	resetFlags(RootCmd)

	days, err := BackfillCmd.Flags().GetInt("days")
	require.NoError(t, err)
	assert.Zero(t, days)
	force, err := CustomCmd.Flags().GetBool("force")
	require.NoError(t, err)
	assert.False(t, force)
	assert.Empty(t, configPath)
	assert.False(t, BackfillCmd.Flags().Changed("days"))
}

func TestStatusOnFreshWarehouse(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, graphServer(t, &calls).URL)

	require.NoError(t, execute("--config", env.configPath, "status"))
	assert.Zero(t, calls.Load())
}

func TestBadConfigFails(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	require.NoError(t, os.WriteFile(env.configPath, []byte("sync:\n  max_chunk_days: 0\n"), 0o644))

	err := execute("--config", env.configPath, "daily")
	require.Error(t, err)
}

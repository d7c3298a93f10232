package util

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger("debug", format)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}

	logger, err := NewLogger("bogus", "")
	require.NoError(t, err)
	assert.False(t, logger.Desugar().Core().Enabled(-1), "unknown level should fall back to info")
}

func TestPacerFirstWaitIsImmediate(t *testing.T) {
	p := NewPacer(time.Hour)
	assert.Equal(t, time.Hour, p.Delay())

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPacerSpacesRequests(t *testing.T) {
	p := NewPacer(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPacerPausesAfterSlowRequest(t *testing.T) {
	p := NewPacer(100 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	time.Sleep(150 * time.Millisecond)
	p.Done()

	finished := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(finished), 90*time.Millisecond)
}

func TestPacerPausesAfterFastRequest(t *testing.T) {
	p := NewPacer(100 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	time.Sleep(20 * time.Millisecond)
	p.Done()

	finished := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(finished), 90*time.Millisecond)
}

func TestPacerHonoursCancellation(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, p.Wait(ctx))
	cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestPacerDisabled(t *testing.T) {
	p := NewPacer(0)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(ctx))
		p.Done()
	}
}

func TestAccountCalendar(t *testing.T) {
	cal, err := NewAccountCalendar("America/Los_Angeles")
	require.NoError(t, err)

	// 2024-07-15 03:00 UTC is still 2024-07-14 in Los Angeles.
	instant := time.Date(2024, 7, 15, 3, 0, 0, 0, time.UTC)
	cal.now = func() time.Time { return instant }

	assert.Equal(t, civil.Date{Year: 2024, Month: time.July, Day: 14}, cal.Today())
	assert.Equal(t, "America/Los_Angeles", cal.Location().String())
}

func TestAccountCalendarDefaultsToUTC(t *testing.T) {
	cal, err := NewAccountCalendar("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC.String(), cal.Location().String())

	_, err = NewAccountCalendar("Not/AZone")
	assert.Error(t, err)
}

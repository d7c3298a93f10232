// Package gather reconciles the warehouse against the upstream ads platform:
// it plans which days are missing or stale, splits them into request-sized
// chunks, and replaces each chunk's rows in the sink.
package gather

import (
	"context"

	"github.com/cockroachdb/errors"

	"adsync/internal/domain"
)

// Source is the upstream ads platform.
type Source interface {
	// FetchDailyMetrics returns one insight per ad per day within r.
	FetchDailyMetrics(ctx context.Context, r domain.DateRange) ([]domain.Insight, error)
}

var (
	// ErrUpstreamTimeout marks a fetch that exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream fetch timed out")

	// ErrUpstreamRequest marks any other failed fetch.
	ErrUpstreamRequest = errors.New("upstream request failed")

	// ErrSinkWrite marks a failed delete or append.
	ErrSinkWrite = errors.New("warehouse write failed")

	// ErrEmptyInsert marks a bulk append that inserted nothing from a
	// non-empty batch.
	ErrEmptyInsert = errors.New("append inserted no rows")

	// ErrInvalidArgument marks a bad operator-supplied argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

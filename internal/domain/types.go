// Package domain defines the value types shared by the planner, the upstream
// insights client, and the warehouse sinks.
package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Dates
// ---------------------------------------------------------------------------

// DateRange is an inclusive, closed interval of calendar days. Start is never
// after End.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// NewDateRange returns the range [start, end], or an error if start is after
// end.
func NewDateRange(start, end civil.Date) (DateRange, error) {
	if start.After(end) {
		return DateRange{}, fmt.Errorf("start %s is after end %s", start, end)
	}
	return DateRange{Start: start, End: end}, nil
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	return r.End.DaysSince(r.Start) + 1
}

// Contains reports whether d lies within the range.
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Adjacent reports whether next starts on the day after r ends.
func (r DateRange) Adjacent(next DateRange) bool {
	return r.End.AddDays(1) == next.Start
}

func (r DateRange) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ".." + r.End.String()
}

// ---------------------------------------------------------------------------
// Upstream records
// ---------------------------------------------------------------------------

// ActionValue is one entry of the nested actions / action_values lists an
// insight record may carry. Value is whatever the API sent: usually a string,
// sometimes a number.
type ActionValue struct {
	ActionType string
	Value      any
}

// Insight is a single per-day, per-ad record returned by the upstream source.
// Fields holds the flat named fields as decoded from the wire.
type Insight struct {
	Fields       map[string]any
	Actions      []ActionValue
	ActionValues []ActionValue
}

// String returns the named field as a string, or "" if it is absent.
func (i Insight) String(name string) string {
	v, ok := i.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ---------------------------------------------------------------------------
// Warehouse rows
// ---------------------------------------------------------------------------

// MetricRow is one ad's performance for one day, ready to append to the sink.
type MetricRow struct {
	AccountID    string
	AccountName  string
	CampaignID   string
	CampaignName string
	AdsetID      string
	AdsetName    string
	AdID         string
	AdName       string
	Date         civil.Date

	Impressions int64
	Clicks      int64
	Reach       int64
	Spend       decimal.Decimal
	CPC         float64
	CPM         float64
	CTR         float64
	Frequency   float64
	UniqueCTR   float64

	Conversions       int64
	ConversionValue   decimal.Decimal
	CostPerConversion decimal.Decimal
}

// Summary aggregates the whole warehouse table for status reporting. Earliest
// and Latest are zero when the table is empty.
type Summary struct {
	Earliest         civil.Date
	Latest           civil.Date
	Days             int64
	Rows             int64
	TotalSpend       float64
	TotalImpressions int64
	TotalClicks      int64
}

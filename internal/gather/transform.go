package gather

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"adsync/internal/domain"
)

// InsightFields are the flat fields requested from the upstream source for
// every ad-day record.
var InsightFields = []string{
	"account_id",
	"account_name",
	"campaign_id",
	"campaign_name",
	"adset_id",
	"adset_name",
	"ad_id",
	"ad_name",
	"date_start",
	"impressions",
	"clicks",
	"reach",
	"spend",
	"cpc",
	"cpm",
	"ctr",
	"frequency",
	"unique_ctr",
	"actions",
	"action_values",
}

// Transformer turns upstream insights into warehouse rows and drops rows
// under the spend threshold.
type Transformer struct {
	minSpend        decimal.Decimal
	conversionTypes []string
}

// NewTransformer creates a Transformer. conversionTypes lists action types in
// priority order; the first one present in a record counts as its
// conversions.
func NewTransformer(minSpend decimal.Decimal, conversionTypes []string) *Transformer {
	return &Transformer{minSpend: minSpend, conversionTypes: conversionTypes}
}

// Transform converts insights and applies the spend filter. Records without a
// usable date_start cannot be placed in a partition and are counted as
// skipped; records below the spend threshold are counted as filtered.
func (t *Transformer) Transform(insights []domain.Insight) (rows []domain.MetricRow, filtered, skipped int) {
	rows = make([]domain.MetricRow, 0, len(insights))
	for _, in := range insights {
		row, err := t.Row(in)
		if err != nil {
			skipped++
			continue
		}
		if row.Spend.LessThan(t.minSpend) {
			filtered++
			continue
		}
		rows = append(rows, row)
	}
	return rows, filtered, skipped
}

// Row converts one insight. Numeric fields that are missing or malformed
// become zero; only an unparseable date is an error.
func (t *Transformer) Row(in domain.Insight) (domain.MetricRow, error) {
	date, err := civil.ParseDate(in.String("date_start"))
	if err != nil {
		return domain.MetricRow{}, errors.Wrapf(err, "record for ad %q has no usable date_start", in.String("ad_id"))
	}

	row := domain.MetricRow{
		AccountID:    in.String("account_id"),
		AccountName:  in.String("account_name"),
		CampaignID:   in.String("campaign_id"),
		CampaignName: in.String("campaign_name"),
		AdsetID:      in.String("adset_id"),
		AdsetName:    in.String("adset_name"),
		AdID:         in.String("ad_id"),
		AdName:       in.String("ad_name"),
		Date:         date,

		Impressions: intValue(in.Fields["impressions"]),
		Clicks:      intValue(in.Fields["clicks"]),
		Reach:       intValue(in.Fields["reach"]),
		Spend:       decimalValue(in.Fields["spend"]),
		CPC:         floatValue(in.Fields["cpc"]),
		CPM:         floatValue(in.Fields["cpm"]),
		CTR:         floatValue(in.Fields["ctr"]),
		Frequency:   floatValue(in.Fields["frequency"]),
		UniqueCTR:   floatValue(in.Fields["unique_ctr"]),
	}

	if v, ok := pickAction(in.Actions, t.conversionTypes); ok {
		row.Conversions = intValue(v)
	}
	if v, ok := pickAction(in.ActionValues, t.conversionTypes); ok {
		row.ConversionValue = decimalValue(v)
	}
	if row.Conversions > 0 {
		row.CostPerConversion = row.Spend.Div(decimal.NewFromInt(row.Conversions)).Round(4)
	}
	return row, nil
}

// pickAction returns the value of the highest-priority action type present in
// list.
func pickAction(list []domain.ActionValue, priority []string) (any, bool) {
	for _, want := range priority {
		for _, a := range list {
			if a.ActionType == want {
				return a.Value, true
			}
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Lenient numeric parsing
// ---------------------------------------------------------------------------

func decimalValue(v any) decimal.Decimal {
	switch x := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero
		}
		return d
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(x)
	case int64:
		return decimal.NewFromInt(x)
	case int:
		return decimal.NewFromInt(int64(x))
	default:
		return decimal.Zero
	}
}

func intValue(v any) int64 {
	if s, ok := v.(string); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	}
	return decimalValue(v).IntPart()
}

func floatValue(v any) float64 {
	return decimalValue(v).InexactFloat64()
}

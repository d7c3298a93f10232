// Package facebook implements the upstream Source on the Facebook Marketing
// (Graph) API insights edge.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"adsync/internal/config"
	"adsync/internal/domain"
	"adsync/internal/gather"
)

// Compile-time interface check.
var _ gather.Source = (*Client)(nil)

// Client fetches daily ad-level insights for one ad account.
type Client struct {
	accessToken string
	accountID   string
	apiVersion  string
	baseURL     string
	pageLimit   int
	httpClient  *http.Client
	log         *zap.SugaredLogger
}

// Config holds the client settings. HTTPClient and Logger may be nil.
type Config struct {
	AccessToken string
	AdAccountID string // with or without the act_ prefix
	APIVersion  string
	BaseURL     string
	PageLimit   int
	HTTPClient  *http.Client
	Logger      *zap.SugaredLogger
}

// NewClient creates a Client. No request deadline is set on the HTTP client;
// callers bound each fetch through the context.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		accessToken: cfg.AccessToken,
		accountID:   strings.TrimPrefix(cfg.AdAccountID, "act_"),
		apiVersion:  cfg.APIVersion,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		pageLimit:   cfg.PageLimit,
		httpClient:  httpClient,
		log:         logger,
	}
}

// FromConfig creates a Client from the facebook config section.
func FromConfig(fb config.Facebook, logger *zap.SugaredLogger) *Client {
	return NewClient(Config{
		AccessToken: fb.AccessToken,
		AdAccountID: fb.AdAccountID,
		APIVersion:  fb.APIVersion,
		BaseURL:     fb.BaseURL,
		PageLimit:   fb.PageLimit,
		Logger:      logger,
	})
}

// insightsPage is one page of the insights edge.
type insightsPage struct {
	Data   []map[string]any `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// apiError is the Graph API error envelope.
type apiError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// FetchDailyMetrics returns one insight per ad per day within r, following
// pagination until the last page.
func (c *Client) FetchDailyMetrics(ctx context.Context, r domain.DateRange) ([]domain.Insight, error) {
	if c.accessToken == "" || c.accountID == "" {
		return nil, errors.WithHint(errors.New("facebook access token and ad account id are required"),
			"set FB_ACCESS_TOKEN and FB_AD_ACCOUNT_ID or the facebook section of the config file")
	}

	next := c.insightsURL(r)
	var out []domain.Insight
	for page := 1; next != ""; page++ {
		p, err := c.getPage(ctx, next)
		if err != nil {
			return nil, errors.Wrapf(err, "insights page %d for %s", page, r)
		}
		for _, rec := range p.Data {
			out = append(out, toInsight(rec))
		}
		c.log.Debugw("fetched insights page", "start", r.Start, "end", r.End, "page", page, "records", len(p.Data))
		next = p.Paging.Next
	}
	return out, nil
}

// insightsURL builds the first-page request:
//
//	GET {base}/{version}/act_{account}/insights?level=ad&time_increment=1&...
func (c *Client) insightsURL(r domain.DateRange) string {
	timeRange := fmt.Sprintf(`{"since":%q,"until":%q}`, r.Start.String(), r.End.String())
	q := url.Values{}
	q.Set("access_token", c.accessToken)
	q.Set("level", "ad")
	q.Set("time_increment", "1")
	q.Set("time_range", timeRange)
	q.Set("fields", strings.Join(gather.InsightFields, ","))
	if c.pageLimit > 0 {
		q.Set("limit", strconv.Itoa(c.pageLimit))
	}
	return fmt.Sprintf("%s/%s/act_%s/insights?%s", c.baseURL, c.apiVersion, c.accountID, q.Encode())
}

func (c *Client) getPage(ctx context.Context, u string) (*insightsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the access token; keep it out of the message.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, errors.Wrap(uerr.Err, "failed to send request")
		}
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			e := apiErr.Error
			return nil, errors.Newf("graph api status %d: %s (type %s, code %d, subcode %d, trace %s)",
				resp.StatusCode, e.Message, e.Type, e.Code, e.Subcode, e.FBTraceID)
		}
		return nil, errors.Newf("graph api status %d: %s", resp.StatusCode, truncate(string(body), 512))
	}

	var page insightsPage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return nil, errors.Wrap(err, "failed to decode insights page")
	}
	return &page, nil
}

// toInsight splits the nested action lists out of a raw record.
func toInsight(rec map[string]any) domain.Insight {
	in := domain.Insight{
		Fields:       rec,
		Actions:      actionList(rec["actions"]),
		ActionValues: actionList(rec["action_values"]),
	}
	delete(rec, "actions")
	delete(rec, "action_values")
	return in
}

func actionList(v any) []domain.ActionValue {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]domain.ActionValue, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := m["action_type"].(string)
		out = append(out, domain.ActionValue{ActionType: typ, Value: m["value"]})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

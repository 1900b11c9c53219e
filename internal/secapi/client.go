// Package secapi is a client for the Smart Energy Control contract catalog API.
package secapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/tariffwatch/internal/logger"
	"github.com/rewired-gh/tariffwatch/internal/metrics"
	"github.com/rewired-gh/tariffwatch/internal/models"
)

// ErrNotListed is returned when a contract is absent from a fresh catalog.
var ErrNotListed = errors.New("contract not listed in catalog")

// ClientConfig tunes retries, pacing and reporting period lookup.
type ClientConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
	RatePerSecond  float64
	PeriodLookback int
}

// Client provides access to the catalog API for one configuration entry.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
	lookback       int
	now            func() time.Time
}

// CatalogGroup is one keyed group of the catalog response.
type CatalogGroup struct {
	Name      string                      `json:"name"`
	Contracts []models.DiscoveredContract `json:"-"`
}

// Catalog maps the opaque response keys to their contract groups.
type Catalog map[string]CatalogGroup

// Keys returns the catalog keys in sorted order.
func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Rows returns every contract of every group, groups in key order.
func (c Catalog) Rows() []models.DiscoveredContract {
	var rows []models.DiscoveredContract
	for _, k := range c.Keys() {
		rows = append(rows, c[k].Contracts...)
	}
	return rows
}

// FetchOptions selects live pricing for a postal code.
type FetchOptions struct {
	ShowPrices bool
	ZipCode    string
}

type catalogGroup struct {
	Name            string            `json:"name"`
	Prijsonderdelen []json.RawMessage `json:"prijsonderdelen"`
}

// catalogResponse carries data as raw JSON: an unpopulated period comes
// back as an empty array instead of an object.
type catalogResponse struct {
	Data json.RawMessage `json:"data"`
}

func (r catalogResponse) groups() (map[string]catalogGroup, error) {
	trimmed := strings.TrimSpace(string(r.Data))
	if trimmed == "" || trimmed == "null" || strings.HasPrefix(trimmed, "[") {
		return nil, nil
	}
	var groups map[string]catalogGroup
	if err := json.Unmarshal(r.Data, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// NewClient creates a new catalog client
func NewClient(baseURL, apiKey string, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:        rate.NewLimiter(limit, 1),
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		lookback:       cfg.PeriodLookback,
		now:            time.Now,
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Validate probes the base endpoint; a 200 response means the credential is valid.
func (c *Client) Validate(ctx context.Context) (bool, error) {
	resp, err := c.doRequest(ctx, c.baseURL)
	metrics.ObserveAPIRequest("validate", err)
	if err != nil {
		var cue *models.CatalogUnavailableError
		if errors.As(err, &cue) && cue.StatusCode != 0 {
			logger.Debug("Failed to authenticate with the catalog API (status %d)", cue.StatusCode)
			return false, nil
		}
		return false, err
	}
	resp.Body.Close()
	logger.Debug("Successfully authenticated with the catalog API")
	return true, nil
}

// ResolveCurrentPeriod asks the API which reporting period is current.
func (c *Client) ResolveCurrentPeriod(ctx context.Context) (Period, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return Period{}, fmt.Errorf("failed to parse URL: %w", err)
	}
	u = u.JoinPath("..", "month")

	resp, err := c.doRequest(ctx, u.String())
	metrics.ObserveAPIRequest("period", err)
	if err != nil {
		return Period{}, err
	}
	defer resp.Body.Close()

	var p Period
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Period{}, &models.CatalogUnavailableError{Op: "period", Err: fmt.Errorf("failed to decode period: %w", err)}
	}
	return p, nil
}

// FetchCatalog retrieves the catalog rows matching a partial filter. When the
// current period has no data it steps back month by month, up to the
// configured lookback. An empty catalog is a valid result.
func (c *Client) FetchCatalog(ctx context.Context, filter models.ContractFilter, opts FetchOptions) (Catalog, error) {
	period, err := c.ResolveCurrentPeriod(ctx)
	if err != nil {
		logger.Warn("Failed to resolve reporting period, using local clock: %v", err)
		period = PeriodOf(c.now())
	}

	for step := 0; step <= c.lookback; step++ {
		catalog, err := c.fetchPeriod(ctx, period, filter, opts)
		if err != nil {
			return nil, err
		}
		if len(catalog) > 0 {
			return catalog, nil
		}
		logger.Debug("Catalog empty for %s %d, stepping back", period.Month, period.Year)
		period = period.Previous()
	}
	return Catalog{}, nil
}

func (c *Client) fetchPeriod(ctx context.Context, p Period, filter models.ContractFilter, opts FetchOptions) (Catalog, error) {
	params := []string{
		"maand=" + url.QueryEscape(p.Month),
		fmt.Sprintf("jaar=%d", p.Year),
	}
	params = append(params, filter.Query()...)
	if opts.ShowPrices {
		params = append(params, "show_prices=yes", "postcode="+url.QueryEscape(opts.ZipCode))
	}

	resp, err := c.doRequest(ctx, c.baseURL+"?"+strings.Join(params, "&"))
	metrics.ObserveAPIRequest("catalog", err)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &models.CatalogUnavailableError{Op: "catalog", Err: fmt.Errorf("failed to decode catalog: %w", err)}
	}
	groups, err := body.groups()
	if err != nil {
		return nil, &models.CatalogUnavailableError{Op: "catalog", Err: fmt.Errorf("failed to decode catalog data: %w", err)}
	}

	catalog := make(Catalog, len(groups))
	for key, group := range groups {
		g := CatalogGroup{Name: group.Name}
		for _, raw := range group.Prijsonderdelen {
			var row models.DiscoveredContract
			if err := json.Unmarshal(raw, &row); err != nil {
				logger.Warn("Skipping undecodable catalog row in %s: %v", key, err)
				continue
			}
			if err := row.Validate(); err != nil {
				logger.Warn("Skipping catalog row in %s: %v", key, err)
				continue
			}
			g.Contracts = append(g.Contracts, row)
		}
		catalog[key] = g
	}
	return catalog, nil
}

// FetchLivePrice re-fetches a contract with live pricing for zip. It
// returns the row with the contract's catalog id, or failing that the first
// row of the first group with the same contract type.
func (c *Client) FetchLivePrice(ctx context.Context, contract models.DiscoveredContract, zip string) (models.DiscoveredContract, error) {
	catalog, err := c.FetchCatalog(ctx, contract.ContractFilter, FetchOptions{ShowPrices: true, ZipCode: zip})
	if err != nil {
		return models.DiscoveredContract{}, err
	}
	for _, row := range catalog.Rows() {
		if row.ID == contract.ID {
			return row, nil
		}
	}
	keys := catalog.Keys()
	if len(keys) == 0 {
		return models.DiscoveredContract{}, ErrNotListed
	}
	for _, row := range catalog[keys[0]].Contracts {
		if row.ContractType == contract.ContractType {
			return row, nil
		}
	}
	return models.DiscoveredContract{}, ErrNotListed
}

// doRequest performs an authenticated GET with retry on transport errors and
// 5xx responses. Any other non-200 status fails immediately.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	op := "GET " + urlStr
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &models.CatalogUnavailableError{Op: op, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, &models.CatalogUnavailableError{Op: op, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &models.CatalogUnavailableError{Op: op, Err: err}
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &models.CatalogUnavailableError{Op: op, StatusCode: resp.StatusCode}
		} else if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &models.CatalogUnavailableError{Op: op, StatusCode: resp.StatusCode}
		} else {
			return resp, nil
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, &models.CatalogUnavailableError{Op: op, Err: ctx.Err()}
			case <-time.After(c.retryDelayBase * time.Duration(i+1)):
			}
		}
	}

	return nil, lastErr
}

// Package edgar provides SEC EDGAR API integration for fetching company
// submissions and filing documents.
// API Documentation: https://www.sec.gov/developer
package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL serves filing archives.
	DefaultBaseURL = "https://www.sec.gov"
	// DefaultDataBaseURL serves the submissions API.
	DefaultDataBaseURL = "https://data.sec.gov"

	// SEC fair-access guideline: at most 10 requests per second.
	DefaultRateLimit  = 10
	DefaultRateWindow = time.Second

	// DefaultCacheTTL keeps fetched responses for an hour.
	DefaultCacheTTL = time.Hour

	requestTimeout = 30 * time.Second

	maxAttempts    = 5
	initialBackoff = 2 * time.Second
	maxBackoff     = 60 * time.Second
)

// ErrNotFound marks a 404: the document does not exist and retrying
// cannot help. Callers match it with errors.Is.
var ErrNotFound = errors.New("edgar: not found")

// BlockedError is returned when the SEC keeps answering 403 after all
// retries, which almost always means the identification header was
// rejected.
type BlockedError struct {
	UserAgent string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("edgar: blocked by SEC (HTTP 403 after %d attempts); check User-Agent %q", maxAttempts, e.UserAgent)
}

// Options configures a Client. Zero values take the defaults above.
type Options struct {
	// UserAgent identifies the caller per SEC guidelines:
	// "AppName admin@example.com". Required.
	UserAgent string

	BaseURL     string
	DataBaseURL string

	RateLimit  int
	RateWindow time.Duration
	CacheTTL   time.Duration

	HTTPClient *http.Client
}

// Client is a rate-limited, caching SEC EDGAR client.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	cache       *responseCache
	userAgent   string
	baseURL     string
	dataBaseURL string

	backoffBase time.Duration
}

// NewClient builds a client. The user agent must be non-empty.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.UserAgent) == "" {
		return nil, fmt.Errorf("edgar: user agent is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.DataBaseURL == "" {
		opts.DataBaseURL = DefaultDataBaseURL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = DefaultRateWindow
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: requestTimeout}
	}

	limit := rate.Limit(float64(opts.RateLimit) / opts.RateWindow.Seconds())
	return &Client{
		httpClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(limit, opts.RateLimit),
		cache:       newResponseCache(opts.CacheTTL),
		userAgent:   opts.UserAgent,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		dataBaseURL: strings.TrimRight(opts.DataBaseURL, "/"),
		backoffBase: initialBackoff,
	}, nil
}

// PadCIK zero-pads a CIK to the 10 digits EDGAR URLs require.
func PadCIK(cik string) string {
	return fmt.Sprintf("%010s", strings.TrimLeft(cik, "0"))
}

// SubmissionsURL returns the submissions API endpoint for a CIK.
func (c *Client) SubmissionsURL(cik string) string {
	return fmt.Sprintf("%s/submissions/CIK%s.json", c.dataBaseURL, PadCIK(cik))
}

// IndexURL returns the filing index page for an accession number.
func (c *Client) IndexURL(cik, accessionNumber string) string {
	noDashes := strings.ReplaceAll(accessionNumber, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s-index.htm",
		c.baseURL, PadCIK(cik), noDashes, accessionNumber)
}

// DocumentURL returns the download URL for one document of a filing.
func (c *Client) DocumentURL(cik, accessionNumber, documentName string) string {
	noDashes := strings.ReplaceAll(accessionNumber, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		c.baseURL, PadCIK(cik), noDashes, documentName)
}

// Get fetches a URL through the cache, the rate limiter and the retry
// loop, in that order.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if body, ok := c.cache.get(url); ok {
		return body, nil
	}

	backoff := c.backoffBase
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("edgar: rate limiter: %w", err)
		}

		body, status, err := c.doRequest(ctx, url)
		if err != nil {
			return nil, err
		}

		switch status {
		case http.StatusOK:
			c.cache.set(url, body)
			return body, nil
		case http.StatusNotFound:
			return nil, fmt.Errorf("edgar: %s: %w", url, ErrNotFound)
		case http.StatusTooManyRequests, http.StatusForbidden:
			if attempt >= maxAttempts {
				if status == http.StatusForbidden {
					return nil, &BlockedError{UserAgent: c.userAgent}
				}
				return nil, fmt.Errorf("edgar: %s returned %d after %d attempts", url, status, attempt)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		default:
			return nil, fmt.Errorf("edgar: %s returned status %d", url, status)
		}
	}
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("edgar: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("edgar: request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("edgar: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// CompanyInfo is the company-level slice of the submissions response.
type CompanyInfo struct {
	CIK            string   `json:"cik"`
	Name           string   `json:"name"`
	SIC            string   `json:"sic"`
	SICDescription string   `json:"sicDescription"`
	Tickers        []string `json:"tickers"`
	Exchanges      []string `json:"exchanges"`
}

// submissionsResponse mirrors the submissions API payload. Filing
// attributes arrive as parallel arrays.
type submissionsResponse struct {
	CIK            string   `json:"cik"`
	Name           string   `json:"name"`
	SIC            string   `json:"sic"`
	SICDescription string   `json:"sicDescription"`
	Tickers        []string `json:"tickers"`
	Exchanges      []string `json:"exchanges"`
	Filings        struct {
		Recent struct {
			AccessionNumber       []string `json:"accessionNumber"`
			Form                  []string `json:"form"`
			FilingDate            []string `json:"filingDate"`
			PrimaryDocument       []string `json:"primaryDocument"`
			PrimaryDocDescription []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

// FilingHeader is one filing row denormalized from the parallel arrays.
type FilingHeader struct {
	AccessionNumber string
	FormType        string
	FilingDate      string // YYYY-MM-DD
	PrimaryDocument string
	Description     string
	CIK             string
	CompanyName     string
}

func (c *Client) fetchSubmissions(ctx context.Context, cik string) (*submissionsResponse, error) {
	body, err := c.Get(ctx, c.SubmissionsURL(cik))
	if err != nil {
		return nil, err
	}
	var resp submissionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("edgar: parse submissions for CIK %s: %w", cik, err)
	}
	return &resp, nil
}

// FetchCompanyInfo retrieves the company profile for a CIK.
func (c *Client) FetchCompanyInfo(ctx context.Context, cik string) (*CompanyInfo, error) {
	resp, err := c.fetchSubmissions(ctx, cik)
	if err != nil {
		return nil, err
	}
	return &CompanyInfo{
		CIK:            resp.CIK,
		Name:           resp.Name,
		SIC:            resp.SIC,
		SICDescription: resp.SICDescription,
		Tickers:        resp.Tickers,
		Exchanges:      resp.Exchanges,
	}, nil
}

// FetchFilings lists a company's recent filings filtered by form type
// and filing-date range. Dates are YYYY-MM-DD strings; an empty bound
// is open. Pass no form types for all forms.
func (c *Client) FetchFilings(ctx context.Context, cik string, formTypes []string, fromDate, toDate string) ([]FilingHeader, error) {
	resp, err := c.fetchSubmissions(ctx, cik)
	if err != nil {
		return nil, err
	}

	formTypeSet := make(map[string]bool)
	for _, ft := range formTypes {
		formTypeSet[ft] = true
	}

	recent := resp.Filings.Recent
	var headers []FilingHeader
	for i := range recent.AccessionNumber {
		if len(formTypeSet) > 0 && !formTypeSet[recent.Form[i]] {
			continue
		}
		// ISO dates compare correctly as strings.
		date := recent.FilingDate[i]
		if fromDate != "" && date < fromDate {
			continue
		}
		if toDate != "" && date > toDate {
			continue
		}

		var description string
		if i < len(recent.PrimaryDocDescription) {
			description = recent.PrimaryDocDescription[i]
		}
		headers = append(headers, FilingHeader{
			AccessionNumber: recent.AccessionNumber[i],
			FormType:        recent.Form[i],
			FilingDate:      date,
			PrimaryDocument: recent.PrimaryDocument[i],
			Description:     description,
			CIK:             resp.CIK,
			CompanyName:     resp.Name,
		})
	}
	return headers, nil
}

// FetchDocument downloads one filing document.
func (c *Client) FetchDocument(ctx context.Context, cik, accessionNumber, documentName string) ([]byte, error) {
	return c.Get(ctx, c.DocumentURL(cik, accessionNumber, documentName))
}

// FetchIndex downloads the filing index page listing all exhibits.
func (c *Client) FetchIndex(ctx context.Context, cik, accessionNumber string) ([]byte, error) {
	return c.Get(ctx, c.IndexURL(cik, accessionNumber))
}

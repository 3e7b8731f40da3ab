package edgar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const submissionsJSON = `{
	"cik": "320193",
	"name": "Acme Holdings Corp",
	"sic": "3674",
	"sicDescription": "Semiconductors",
	"tickers": ["ACME"],
	"exchanges": ["Nasdaq"],
	"filings": {
		"recent": {
			"accessionNumber": ["0000320193-24-000003", "0000320193-24-000002", "0000320193-24-000001"],
			"form": ["8-K", "10-K", "8-K"],
			"filingDate": ["2024-06-12", "2024-03-01", "2023-11-20"],
			"primaryDocument": ["d8k2024.htm", "d10k.htm", "d8k2023.htm"],
			"primaryDocDescription": ["8-K", "10-K", "8-K"]
		}
	}
}`

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{
		UserAgent:   "DealGraphTest test@example.com",
		BaseURL:     srv.URL,
		DataBaseURL: srv.URL,
		RateLimit:   1000,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.backoffBase = time.Millisecond
	return client, srv
}

func TestNewClientRequiresUserAgent(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Error("empty user agent must be rejected")
	}
}

func TestURLConstruction(t *testing.T) {
	client, err := NewClient(Options{UserAgent: "x y@z"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if got := client.SubmissionsURL("320193"); got != "https://data.sec.gov/submissions/CIK0000320193.json" {
		t.Errorf("SubmissionsURL = %q", got)
	}
	if got := client.IndexURL("320193", "0000320193-24-000001"); got !=
		"https://www.sec.gov/Archives/edgar/data/0000320193/000032019324000001/0000320193-24-000001-index.htm" {
		t.Errorf("IndexURL = %q", got)
	}
	if got := client.DocumentURL("320193", "0000320193-24-000001", "d8k.htm"); got !=
		"https://www.sec.gov/Archives/edgar/data/0000320193/000032019324000001/d8k.htm" {
		t.Errorf("DocumentURL = %q", got)
	}
}

func TestFetchFilingsFilters(t *testing.T) {
	var gotUA string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(submissionsJSON))
	}))

	headers, err := client.FetchFilings(context.Background(), "320193", []string{"8-K"}, "2024-01-01", "")
	if err != nil {
		t.Fatalf("FetchFilings: %v", err)
	}
	if gotUA != "DealGraphTest test@example.com" {
		t.Errorf("user agent not sent: %q", gotUA)
	}
	if len(headers) != 1 {
		t.Fatalf("got %d filings, want 1 (8-K within range)", len(headers))
	}
	h := headers[0]
	if h.AccessionNumber != "0000320193-24-000003" || h.FilingDate != "2024-06-12" {
		t.Errorf("wrong filing selected: %+v", h)
	}
	if h.CompanyName != "Acme Holdings Corp" || h.CIK != "320193" {
		t.Errorf("company fields not carried: %+v", h)
	}
}

func TestFetchCompanyInfo(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(submissionsJSON))
	}))

	info, err := client.FetchCompanyInfo(context.Background(), "320193")
	if err != nil {
		t.Fatalf("FetchCompanyInfo: %v", err)
	}
	if info.Name != "Acme Holdings Corp" || info.SIC != "3674" {
		t.Errorf("info wrong: %+v", info)
	}
	if len(info.Tickers) != 1 || info.Tickers[0] != "ACME" {
		t.Errorf("tickers wrong: %v", info.Tickers)
	}
}

func TestGetCachesResponses(t *testing.T) {
	hits := 0
	client, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("payload"))
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.Get(ctx, srv.URL+"/doc.htm"); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if hits != 1 {
		t.Errorf("got %d upstream hits, want 1 (cached)", hits)
	}
}

func TestGetRetriesOn429(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client, err := NewClient(Options{
		UserAgent:   "DealGraphTest test@example.com",
		BaseURL:     srv.URL,
		DataBaseURL: srv.URL,
		RateLimit:   1000,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.backoffBase = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body, err := client.Get(ctx, srv.URL+"/throttled")
	if err != nil {
		t.Fatalf("Get after retries: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("unexpected body %q", body)
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3", attempts)
	}
}

func TestGetBlockedAfterFinal403(t *testing.T) {
	client, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.Get(context.Background(), srv.URL+"/blocked")
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("got %v, want BlockedError", err)
	}
	if blocked.UserAgent != "DealGraphTest test@example.com" {
		t.Errorf("error must name the user agent: %v", blocked)
	}
}

func TestGetNotFoundSentinel(t *testing.T) {
	hits := 0
	client, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Get(context.Background(), srv.URL+"/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if hits != 1 {
		t.Errorf("404 retried %d times, want 1 attempt", hits)
	}
}

func TestGetFatalOnOtherStatus(t *testing.T) {
	client, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if _, err := client.Get(context.Background(), srv.URL+"/broken"); err == nil {
		t.Error("5xx must surface an error")
	}
}

func TestPadCIK(t *testing.T) {
	if got := PadCIK("320193"); got != "0000320193" {
		t.Errorf("PadCIK = %q", got)
	}
	if got := PadCIK("0000320193"); got != "0000320193" {
		t.Errorf("PadCIK idempotence broken: %q", got)
	}
}

package edgar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finbrief/finbrief/internal/common"
)

func testClient(baseURL string) *Client {
	return NewClient(common.EdgarConfig{
		BaseURL:   baseURL,
		UserAgent: "finbrief test suite admin@example.com",
		Timeout:   5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func submissionsFixture(t *testing.T) string {
	t.Helper()
	recent := time.Now().UTC().AddDate(0, 0, -5).Format("2006-01-02")
	old := time.Now().UTC().AddDate(0, 0, -400).Format("2006-01-02")
	return fmt.Sprintf(`{
		"cik": 320193,
		"name": "Apple Inc.",
		"tickers": ["AAPL"],
		"exchanges": ["Nasdaq"],
		"filings": {
			"recent": {
				"accessionNumber": ["0000320193-24-000123", "0000320193-24-000100", "0000320193-23-000050"],
				"form": ["10-K", "8-K", "10-Q"],
				"filingDate": ["%s", "%s", "%s"],
				"primaryDocument": ["aapl-10k.htm", "aapl-8k.htm", "aapl-10q.htm"]
			}
		}
	}`, recent, recent, old)
}

func TestCompanyProfile(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path != "/submissions/CIK0000320193.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, submissionsFixture(t))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	p, err := c.CompanyProfile(context.Background(), "320193")
	if err != nil {
		t.Fatalf("CompanyProfile: %v", err)
	}
	if p.Name != "Apple Inc." || p.Ticker != "AAPL" || p.Exchange != "Nasdaq" {
		t.Errorf("profile = %+v", p)
	}
	if p.CIK != "0000320193" {
		t.Errorf("CIK = %s, want zero-padded", p.CIK)
	}
	if gotUA != "finbrief test suite admin@example.com" {
		t.Errorf("User-Agent = %q, SEC fair-access header missing", gotUA)
	}
}

func TestListRecentFilingsFiltersFormsAndWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submissionsFixture(t))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	filings, err := c.ListRecentFilings(context.Background(), "320193", []string{"10-K", "10-Q"}, 30)
	if err != nil {
		t.Fatalf("ListRecentFilings: %v", err)
	}
	// The 8-K is the wrong form; the 10-Q is outside the lookback window.
	if len(filings) != 1 {
		t.Fatalf("filings = %d, want 1", len(filings))
	}
	if filings[0].AccessionNumber != "0000320193-24-000123" || filings[0].Form != "10-K" {
		t.Errorf("filing = %+v", filings[0])
	}
	if filings[0].PrimaryDocument != "aapl-10k.htm" {
		t.Errorf("PrimaryDocument = %s", filings[0].PrimaryDocument)
	}
}

func TestListRecentFilingsFormMatchIsCaseInsensitive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submissionsFixture(t))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	filings, err := c.ListRecentFilings(context.Background(), "320193", []string{"10-k"}, 30)
	if err != nil {
		t.Fatalf("ListRecentFilings: %v", err)
	}
	if len(filings) != 1 {
		t.Errorf("filings = %d, want 1 with lowercase form filter", len(filings))
	}
}

func TestNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.CompanyProfile(context.Background(), "999999")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if common.IsTransient(err) {
		t.Error("404 must be permanent, not retried")
	}
	if !errors.Is(err, common.ErrPermanent) {
		t.Errorf("err = %v, want permanent classification", err)
	}
}

func TestThrottlingIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.CompanyProfile(context.Background(), "320193")
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if !common.IsTransient(err) {
		t.Error("429 must be retryable")
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.ListRecentFilings(context.Background(), "320193", []string{"10-K"}, 30)
	if !common.IsTransient(err) {
		t.Errorf("502 must be retryable, got %v", err)
	}
}

func TestBadJSONIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>maintenance page</html>")
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.CompanyProfile(context.Background(), "320193")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if common.IsTransient(err) {
		t.Error("undecodable feed must be permanent")
	}
}

func TestPadCIK(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"320193", "0000320193"},
		{"0000320193", "0000320193"},
		{"1", "0000000001"},
		{" 320193 ", "0000320193"},
		{"12345678901", "12345678901"},
	}
	for _, tt := range tests {
		if got := PadCIK(tt.in); got != tt.want {
			t.Errorf("PadCIK(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package edgar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/finbrief/finbrief/internal/common"
)

// Filing is one submission row from the EDGAR submissions feed.
type Filing struct {
	AccessionNumber string
	Form            string
	FiledAt         time.Time
	PrimaryDocument string
}

// CompanyProfile is the registrant metadata carried on the submissions feed.
type CompanyProfile struct {
	CIK      string
	Name     string
	Ticker   string
	Exchange string
}

// Lookup is the interface the scheduler and ingestion depend on.
type Lookup interface {
	CompanyProfile(ctx context.Context, cik string) (*CompanyProfile, error)
	ListRecentFilings(ctx context.Context, cik string, forms []string, lookbackDays int) ([]Filing, error)
	FetchPrimaryDocument(ctx context.Context, cik, accessionNumber, document string) (string, error)
}

// Client talks to the SEC EDGAR JSON endpoints. SEC's fair-access policy
// requires a descriptive User-Agent with a contact address on every request.
type Client struct {
	cfg        common.EdgarConfig
	archiveURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg common.EdgarConfig, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://data.sec.gov"
	}
	return &Client{
		cfg:        cfg,
		archiveURL: "https://www.sec.gov/Archives",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// submissionsDoc mirrors the subset of the submissions feed we consume.
type submissionsDoc struct {
	CIK       json.Number `json:"cik"`
	Name      string      `json:"name"`
	Tickers   []string    `json:"tickers"`
	Exchanges []string    `json:"exchanges"`
	Filings   struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

func (c *Client) CompanyProfile(ctx context.Context, cik string) (*CompanyProfile, error) {
	doc, err := c.submissions(ctx, cik)
	if err != nil {
		return nil, err
	}
	p := &CompanyProfile{CIK: PadCIK(cik), Name: doc.Name}
	if len(doc.Tickers) > 0 {
		p.Ticker = doc.Tickers[0]
	}
	if len(doc.Exchanges) > 0 {
		p.Exchange = doc.Exchanges[0]
	}
	return p, nil
}

// ListRecentFilings returns filings of the requested forms filed within the
// lookback window, newest first (feed order).
func (c *Client) ListRecentFilings(ctx context.Context, cik string, forms []string, lookbackDays int) ([]Filing, error) {
	doc, err := c.submissions(ctx, cik)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		wanted[strings.ToUpper(f)] = struct{}{}
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	recent := doc.Filings.Recent
	var out []Filing
	for i := range recent.AccessionNumber {
		if i >= len(recent.Form) || i >= len(recent.FilingDate) {
			break
		}
		if _, ok := wanted[strings.ToUpper(recent.Form[i])]; !ok {
			continue
		}
		filedAt, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			c.log.Warn("edgar.list.bad_filing_date", "cik", cik, "filing_date", recent.FilingDate[i])
			continue
		}
		if filedAt.Before(cutoff) {
			continue
		}
		f := Filing{
			AccessionNumber: recent.AccessionNumber[i],
			Form:            recent.Form[i],
			FiledAt:         filedAt,
		}
		if i < len(recent.PrimaryDocument) {
			f.PrimaryDocument = recent.PrimaryDocument[i]
		}
		out = append(out, f)
	}
	c.log.Info("edgar.list.ok", "cik", cik, "forms", strings.Join(forms, ","), "count", len(out))
	return out, nil
}

// FetchPrimaryDocument downloads one filing document from the EDGAR archive.
func (c *Client) FetchPrimaryDocument(ctx context.Context, cik, accessionNumber, document string) (string, error) {
	url := fmt.Sprintf("%s/edgar/data/%s/%s/%s",
		c.archiveURL,
		strings.TrimLeft(PadCIK(cik), "0"),
		strings.ReplaceAll(accessionNumber, "-", ""),
		document,
	)
	body, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) submissions(ctx context.Context, cik string) (*submissionsDoc, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/submissions/CIK" + PadCIK(cik) + ".json"
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var doc submissionsDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, common.Permanent(fmt.Errorf("decode submissions feed: %w", err))
	}
	return &doc, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, common.Permanent(err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.Transient(fmt.Errorf("edgar http error: %w", err))
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("edgar response body close error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, common.Permanentf("edgar 404: %s", url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		// 429 and 5xx are throttling/outage, worth retrying later.
		return nil, common.Transientf("edgar status %d: %s", resp.StatusCode, buf.String())
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, common.Transient(err)
	}
	return buf.Bytes(), nil
}

// PadCIK zero-pads a central index key to the 10 digits EDGAR URLs expect.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

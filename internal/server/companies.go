package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/edgar"
	"github.com/finbrief/finbrief/internal/entity"
)

type registerCompanyRequest struct {
	CIK    string `json:"cik" binding:"required"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

func (s *Server) listCompanies(c *gin.Context) {
	companies, err := s.companies.List(c.Request.Context())
	if err != nil {
		s.log.Error("list companies failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing companies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies})
}

// registerCompany adds a tracked company. The scheduler picks it up on its
// next cycle; metadata is filled in by the first pipeline run.
func (s *Server) registerCompany(c *gin.Context) {
	var req registerCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cik is required"})
		return
	}
	company, err := s.companies.Upsert(c.Request.Context(), &entity.Company{
		CIK:     edgar.PadCIK(req.CIK),
		Ticker:  strings.ToUpper(strings.TrimSpace(req.Ticker)),
		Name:    req.Name,
		Tracked: true,
	})
	if err != nil {
		s.log.Error("register company failed", "cik", req.CIK, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registering company"})
		return
	}
	if !company.Tracked {
		if err := s.companies.SetTracked(c.Request.Context(), company.ID, true); err != nil {
			s.log.Error("set tracked failed", "company_id", company.ID, "error", err)
		} else {
			company.Tracked = true
		}
	}
	c.JSON(http.StatusCreated, company)
}

func (s *Server) getCompany(c *gin.Context) {
	company, ok := s.companyByTicker(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, company)
}

func (s *Server) listCompanyFilings(c *gin.Context) {
	company, ok := s.companyByTicker(c)
	if !ok {
		return
	}
	filings, err := s.filings.ListByCompany(c.Request.Context(), company.ID)
	if err != nil {
		s.log.Error("list filings failed", "company_id", company.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing filings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filings": filings})
}

// listCompanySummaries returns the company's frontpage and aggregate
// summaries, the data behind a company page.
func (s *Server) listCompanySummaries(c *gin.Context) {
	company, ok := s.companyByTicker(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	frontpage, err := s.filings.ListSummariesByCompany(ctx, company.ID, constants.SummaryKindFrontpage)
	if err != nil {
		s.log.Error("list frontpage summaries failed", "company_id", company.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing summaries"})
		return
	}
	aggregates, err := s.filings.ListSummariesByCompany(ctx, company.ID, constants.SummaryKindAggregate)
	if err != nil {
		s.log.Error("list aggregate summaries failed", "company_id", company.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing summaries"})
		return
	}
	out := gin.H{"aggregates": aggregates}
	if len(frontpage) > 0 {
		out["frontpage"] = frontpage[0]
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) companyByTicker(c *gin.Context) (*entity.Company, bool) {
	ticker := strings.ToUpper(c.Param("ticker"))
	company, err := s.companies.GetByTicker(c.Request.Context(), ticker)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "company not found"})
		} else {
			s.log.Error("get company failed", "ticker", ticker, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "loading company"})
		}
		return nil, false
	}
	return company, true
}

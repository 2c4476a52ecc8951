package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finbrief/finbrief/internal/common"
)

func (s *Server) listFilingSummaries(c *gin.Context) {
	accession := c.Param("accession")
	filing, err := s.filings.GetByAccession(c.Request.Context(), accession)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "filing not found"})
		} else {
			s.log.Error("get filing failed", "accession_number", accession, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "loading filing"})
		}
		return
	}
	summaries, err := s.filings.ListSummariesByFiling(c.Request.Context(), filing.ID)
	if err != nil {
		s.log.Error("list filing summaries failed", "filing_id", filing.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing summaries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filing": filing, "summaries": summaries})
}

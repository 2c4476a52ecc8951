package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finbrief/finbrief/internal/common"
)

func (s *Server) listRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	var companyID *uuid.UUID
	if ticker := strings.ToUpper(c.Query("ticker")); ticker != "" {
		company, err := s.companies.GetByTicker(c.Request.Context(), ticker)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "company not found"})
			} else {
				s.log.Error("get company failed", "ticker", ticker, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "loading company"})
			}
			return
		}
		companyID = &company.ID
	}

	runs, err := s.runs.List(c.Request.Context(), companyID, limit)
	if err != nil {
		s.log.Error("list runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}
	run, err := s.runs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		} else {
			s.log.Error("get run failed", "run_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "loading run"})
		}
		return
	}
	c.JSON(http.StatusOK, run)
}

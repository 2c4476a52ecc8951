package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/entity"
)

type enqueueJobRequest struct {
	Ticker          string `json:"ticker" binding:"required"`
	AccessionNumber string `json:"accession_number"`
}

// enqueueJob is the manual trigger point, equivalent in effect to a
// scheduler-detected enqueue but with trigger=manual.
func (s *Server) enqueueJob(c *gin.Context) {
	var req enqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}
	company, err := s.companies.GetByTicker(c.Request.Context(), strings.ToUpper(req.Ticker))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "company not found"})
		} else {
			s.log.Error("get company failed", "ticker", req.Ticker, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "loading company"})
		}
		return
	}
	job, err := s.jobs.Enqueue(c.Request.Context(), constants.JobTypeFullPipeline, entity.JobPayload{
		CompanyID:       company.ID,
		Ticker:          company.Ticker,
		AccessionNumber: req.AccessionNumber,
	}, constants.TriggerManual, s.maxAttempts)
	if err != nil {
		s.log.Error("manual enqueue failed", "company_id", company.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueueing job"})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) listJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	jobs, err := s.jobs.List(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("list jobs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}
	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		} else {
			s.log.Error("get job failed", "job_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "loading job"})
		}
		return
	}
	c.JSON(http.StatusOK, job)
}

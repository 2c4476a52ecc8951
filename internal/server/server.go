package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/finbrief/finbrief/internal/repository"
)

// Server is the REST surface over the persisted domain data. It is
// read-mostly: the only writes are registering a tracked company and the
// manual pipeline trigger, both equivalent to what the scheduler does.
type Server struct {
	companies   repository.CompanyRepository
	filings     repository.FilingRepository
	runs        repository.PipelineRunRepository
	jobs        repository.JobRepository
	maxAttempts int
	log         *slog.Logger
}

func New(
	companies repository.CompanyRepository,
	filings repository.FilingRepository,
	runs repository.PipelineRunRepository,
	jobs repository.JobRepository,
	maxAttempts int,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		companies:   companies,
		filings:     filings,
		runs:        runs,
		jobs:        jobs,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/companies", s.listCompanies)
		v1.POST("/companies", s.registerCompany)
		v1.GET("/companies/:ticker", s.getCompany)
		v1.GET("/companies/:ticker/filings", s.listCompanyFilings)
		v1.GET("/companies/:ticker/summaries", s.listCompanySummaries)
		v1.GET("/filings/:accession/summaries", s.listFilingSummaries)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id", s.getRun)
		v1.GET("/jobs", s.listJobs)
		v1.GET("/jobs/:id", s.getJob)
		v1.POST("/jobs", s.enqueueJob)
	}
	return r
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justsurfingit/campus-job-board/internal/dtos"
	"github.com/justsurfingit/campus-job-board/internal/services"
)

type JobHandler struct {
	JobService *services.JobService
	log        *zap.SugaredLogger
}

// NewJobHandler creates the handler with dependencies
func NewJobHandler(j *services.JobService, log *zap.SugaredLogger) *JobHandler {
	return &JobHandler{JobService: j, log: log}
}

// CreateJob is the POST /jobs endpoint
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dtos.JobCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON format: "+err.Error())
		return
	}

	job, err := h.JobService.CreateJob(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// ListJobs returns open postings only.
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.JobService.ListOpenJobs(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// GetJob answers for inactive jobs too; they stay addressable by id.
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	job, err := h.JobService.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) Activate(c *gin.Context)   { h.setActive(c, true) }
func (h *JobHandler) Deactivate(c *gin.Context) { h.setActive(c, false) }

func (h *JobHandler) setActive(c *gin.Context, active bool) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	job, err := h.JobService.SetActive(c.Request.Context(), id, active)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

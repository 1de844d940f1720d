package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justsurfingit/campus-job-board/internal/dtos"
	"github.com/justsurfingit/campus-job-board/internal/services"
)

type ApplicationHandler struct {
	Applications *services.ApplicationService
	log          *zap.SugaredLogger
}

func NewApplicationHandler(apps *services.ApplicationService, log *zap.SugaredLogger) *ApplicationHandler {
	return &ApplicationHandler{Applications: apps, log: log}
}

// Submit is POST /students/:studentID/applications.
func (h *ApplicationHandler) Submit(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	var req dtos.ApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON format: "+err.Error())
		return
	}

	res, err := h.Applications.Submit(c.Request.Context(), studentID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, dtos.SubmitResponse{
		Success:         true,
		Message:         "Application submitted and the employer has been notified",
		Application:     res.Application,
		EmailsSentToday: res.EmailsSentToday,
		EmailsRemaining: res.EmailsRemaining,
	})
}

func (h *ApplicationHandler) List(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	apps, err := h.Applications.List(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

func (h *ApplicationHandler) Get(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	app, err := h.Applications.Get(c.Request.Context(), studentID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// Withdraw is DELETE /students/:studentID/applications/:id; only pending applications qualify.
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.Applications.Withdraw(c.Request.Context(), studentID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Application withdrawn"})
}

func (h *ApplicationHandler) Quota(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	q, err := h.Applications.QuotaStatus(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

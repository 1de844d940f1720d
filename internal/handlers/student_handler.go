package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justsurfingit/campus-job-board/internal/dtos"
	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/services"
)

type StudentHandler struct {
	Students *services.StudentService
	CVs      *services.CVService
	Matches  *services.MatchService
	log      *zap.SugaredLogger
}

func NewStudentHandler(students *services.StudentService, cvs *services.CVService, matches *services.MatchService, log *zap.SugaredLogger) *StudentHandler {
	return &StudentHandler{Students: students, CVs: cvs, Matches: matches, log: log}
}

// UpdateProfile is PATCH /students/:studentID. Matches are recomputed in the background.
func (h *StudentHandler) UpdateProfile(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	var req dtos.StudentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON format: "+err.Error())
		return
	}
	student, err := h.Students.UpdateProfile(c.Request.Context(), studentID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

func (h *StudentHandler) GetCV(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	cvID, ok := uintParam(c, "cvID")
	if !ok {
		return
	}
	cv, err := h.CVs.Resolve(c.Request.Context(), cvID)
	if err == nil && cv.StudentID != studentID {
		err = errors.NotFoundf("cv %d for student %d", cvID, studentID)
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, cv)
}

// ActivateCV is PUT /students/:studentID/cvs/:cvID/active.
func (h *StudentHandler) ActivateCV(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	cvID, ok := uintParam(c, "cvID")
	if !ok {
		return
	}
	cv, err := h.CVs.Activate(c.Request.Context(), studentID, cvID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, cv)
}

func (h *StudentHandler) ListMatches(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	if _, err := h.Students.Get(c.Request.Context(), studentID); err != nil {
		respondError(c, h.log, err)
		return
	}
	recs, err := h.Matches.ListForStudent(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// GetMatch returns one match record and marks it viewed.
func (h *StudentHandler) GetMatch(c *gin.Context) {
	studentID, ok := uintParam(c, "studentID")
	if !ok {
		return
	}
	jobID, ok := uintParam(c, "jobID")
	if !ok {
		return
	}
	rec, err := h.Matches.View(c.Request.Context(), studentID, jobID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

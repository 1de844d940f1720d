package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justsurfingit/campus-job-board/internal/dtos"
	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/logger"
)

// StatusFor maps an error category to its HTTP status.
func StatusFor(err error) int {
	switch errors.Category(err) {
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryDuplicateSubmission, errors.CategoryInvalidStateTransition:
		return http.StatusConflict
	case errors.CategoryNoActiveCV:
		return http.StatusUnprocessableEntity
	case errors.CategoryQuotaExceeded:
		return http.StatusTooManyRequests
	case errors.CategoryNotificationFailed:
		return http.StatusBadGateway
	case errors.CategoryInvalidRequest:
		return http.StatusBadRequest
	case errors.CategoryForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, log *zap.SugaredLogger, err error) {
	status := StatusFor(err)
	category := errors.Category(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), log).Errorw("Request failed", logger.FieldError, err, logger.FieldPath, c.FullPath())
		msg = "internal server error"
	}

	c.JSON(status, dtos.ErrorResponse{
		Success:  false,
		Error:    msg,
		Category: category,
		Hint:     errors.FlattenHints(err),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dtos.ErrorResponse{
		Success:  false,
		Error:    msg,
		Category: errors.CategoryInvalidRequest,
	})
}

// uintParam reads a positive integer path parameter, answering 400 when it is not one.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

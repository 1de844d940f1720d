package dtos

import "github.com/justsurfingit/campus-job-board/internal/models"

type AttachmentPayload struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	// base64 in JSON
	Data []byte `json:"data" binding:"required"`
}

// ApplicationRequest starts a submission. CVID falls back to the student's active CV.
type ApplicationRequest struct {
	JobID       uint                `json:"job_id" binding:"required"`
	CVID        *uint               `json:"cv_id"`
	Subject     string              `json:"subject"`
	EmailBody   string              `json:"email_body"`
	Attachments []AttachmentPayload `json:"attachments"`
}

type SubmitResponse struct {
	Success         bool                `json:"success"`
	Message         string              `json:"message"`
	Application     *models.Application `json:"application"`
	EmailsSentToday int                 `json:"emails_sent_today"`
	EmailsRemaining int                 `json:"emails_remaining"`
}

type ErrorResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Category string `json:"category"`
	Hint     string `json:"hint,omitempty"`
}

package dtos

// StudentUpdateRequest is a partial profile update: nil fields are left unchanged.
type StudentUpdateRequest struct {
	Name         *string  `json:"name"`
	Phone        *string  `json:"phone"`
	Institution  *string  `json:"institution"`
	FieldOfStudy *string  `json:"field_of_study"`
	Skills       []string `json:"skills"` // nil keeps the current skills, [] clears them
}

type QuotaResponse struct {
	Day             string `json:"day"`
	EmailsSentToday int    `json:"emails_sent_today"`
	EmailsRemaining int    `json:"emails_remaining"`
	DailyLimit      int    `json:"daily_limit"`
}

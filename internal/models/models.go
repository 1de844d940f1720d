package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Application lifecycle states.
type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "PENDING"
	StatusSubmitted ApplicationStatus = "SUBMITTED"
)

// Audit event types recorded against an application.
const (
	EventCreated            = "CREATED"
	EventSuperseded         = "SUPERSEDED"
	EventNotificationFailed = "NOTIFICATION_FAILED"
	EventSubmitted          = "SUBMITTED"
	EventWithdrawn          = "WITHDRAWN"
)

type Student struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name         string `gorm:"not null" json:"name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	Phone        string `json:"phone"`
	Institution  string `json:"institution"`
	FieldOfStudy string `json:"field_of_study"`
	// Comma-delimited, case-insensitive skill tokens
	Skills string `gorm:"type:text" json:"skills"`

	ActiveCVID *uint `json:"active_cv_id"`
	CVs        []CV  `json:"cvs,omitempty"`
}

type CV struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID uint   `gorm:"index;not null" json:"student_id"`
	Title     string `json:"title"`
	FileURL   string `json:"file_url"`
	Active    bool   `gorm:"not null;default:false" json:"active"`
}

// Employer is the coordinating-office side of a posting.
type Employer struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name         string `gorm:"not null" json:"name"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
}

type Company struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name    string  `gorm:"uniqueIndex;not null" json:"company_name"`
	HRName  *string `json:"hr_name"`
	HREmail *string `json:"hr_email"`

	// 'omitempty' prevents infinite loops when fetching a Job -> Company -> Jobs -> ...
	Jobs []Job `json:"jobs,omitempty"`
}

type Job struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EmployerID uint     `gorm:"index;not null" json:"employer_id"`
	Employer   Employer `json:"employer"`
	// Association: GORM needs Preload() to fill this
	CompanyID *uint    `gorm:"index" json:"company_id"`
	Company   *Company `json:"company,omitempty"`

	Title           string `gorm:"not null" json:"title"`
	Description     string `gorm:"type:text" json:"description"`
	RequiredSkills  string `gorm:"type:text" json:"required_skills"`
	PreferredSkills string `gorm:"type:text" json:"preferred_skills"`
	// Soft delete: inactive jobs stay addressable for existing applications
	Active bool `gorm:"index;not null;default:true" json:"active"`
}

// CompanyName returns the associated company name, falling back to the employer.
func (j *Job) CompanyName() string {
	if j.Company != nil && strings.TrimSpace(j.Company.Name) != "" {
		return j.Company.Name
	}
	return j.Employer.Name
}

type Application struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// At most one SUBMITTED row per (student, job); enforced by a partial unique index.
	StudentID uint              `gorm:"not null;index:idx_application_pair;uniqueIndex:idx_application_submitted,where:status = 'SUBMITTED'" json:"student_id"`
	JobID     uint              `gorm:"not null;index:idx_application_pair;uniqueIndex:idx_application_submitted,where:status = 'SUBMITTED'" json:"job_id"`
	CVID      uint              `gorm:"column:cv_id;not null" json:"cv_id"`
	Status    ApplicationStatus `gorm:"type:varchar(16);not null;default:'PENDING'" json:"status"`

	CoverLetter string  `gorm:"type:text" json:"cover_letter"`
	MatchScore  float64 `json:"match_score"`

	EmailSent      bool           `gorm:"not null;default:false" json:"email_sent"`
	EmailSentAt    *time.Time     `json:"email_sent_at"`
	EmailSubject   string         `json:"email_subject"`
	EmailBody      string         `gorm:"type:text" json:"email_body"`
	EmailMessageID string         `json:"email_message_id,omitempty"`
	Attachments    datatypes.JSON `json:"attachments,omitempty"`

	// Unset until the notification succeeds
	AppliedAt     *time.Time `json:"applied_at"`
	LastUpdatedAt *time.Time `json:"last_updated_at"`
}

// AttachmentInfo is the manifest entry stored for each emailed attachment.
type AttachmentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type MatchRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID   uint    `gorm:"not null;uniqueIndex:idx_match_pair" json:"student_id"`
	JobID       uint    `gorm:"not null;uniqueIndex:idx_match_pair" json:"job_id"`
	Score       float64 `gorm:"not null" json:"score"`
	Viewed      bool    `gorm:"not null;default:false" json:"viewed"`
	Explanation string  `gorm:"type:text" json:"explanation"`
}

type DailyNotificationQuota struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID uint `gorm:"not null;uniqueIndex:idx_quota_day" json:"student_id"`
	// Calendar day, YYYY-MM-DD, in the tracker's configured location
	Day       string `gorm:"type:varchar(10);not null;uniqueIndex:idx_quota_day" json:"day"`
	SentCount int    `gorm:"not null;default:0" json:"sent_count"`
}

type ApplicationEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	ApplicationID uint      `gorm:"index" json:"application_id"`
	StudentID     uint      `gorm:"index" json:"student_id"`
	JobID         uint      `json:"job_id"`
	EventType     string    `json:"event_type"`
	Details       string    `gorm:"type:text" json:"details"`
}

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{
		&Student{}, &CV{}, &Employer{}, &Company{}, &Job{},
		&Application{}, &MatchRecord{}, &DailyNotificationQuota{}, &ApplicationEvent{},
	}
}

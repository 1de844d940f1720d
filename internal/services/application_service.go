package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/justsurfingit/campus-job-board/internal/database"
	"github.com/justsurfingit/campus-job-board/internal/dtos"
	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/logger"
	"github.com/justsurfingit/campus-job-board/internal/models"
	"github.com/justsurfingit/campus-job-board/internal/quota"
)

// DefaultDispatchTimeout bounds an email send when none is configured.
const DefaultDispatchTimeout = 30 * time.Second

// ApplicationDeps are the collaborators of the submission workflow.
type ApplicationDeps struct {
	Quota        *quota.Tracker
	CVs          *CVService
	Matches      *MatchService
	CoverLetters CoverLetterGenerator
	Dispatcher   NotificationDispatcher

	DispatchTimeout time.Duration
	// Base for CV links when a CV has no file URL
	PublicBaseURL string
}

// ApplicationService owns the application lifecycle: PENDING until the
// notification email is accepted, then SUBMITTED.
type ApplicationService struct {
	DB   *gorm.DB
	deps ApplicationDeps
	log  *zap.SugaredLogger
	now  func() time.Time
}

func NewApplicationService(db *gorm.DB, deps ApplicationDeps, log *zap.SugaredLogger) *ApplicationService {
	if deps.DispatchTimeout <= 0 {
		deps.DispatchTimeout = DefaultDispatchTimeout
	}
	deps.PublicBaseURL = strings.TrimRight(deps.PublicBaseURL, "/")
	return &ApplicationService{DB: db, deps: deps, log: log, now: time.Now}
}

// SubmitResult is a successful submission and the student's quota afterwards.
type SubmitResult struct {
	Application     *models.Application
	EmailsSentToday int
	EmailsRemaining int
}

// Submit runs the whole submission for studentID. Sends for one student are
// serialized by the quota lock, which is held until the outcome is committed.
func (s *ApplicationService) Submit(ctx context.Context, studentID uint, req *dtos.ApplicationRequest) (*SubmitResult, error) {
	log := logger.FromContext(ctx, s.log).With(logger.FieldStudentID, studentID, logger.FieldJobID, req.JobID)

	unlock := s.deps.Quota.Lock(studentID)
	defer unlock()

	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	job, err := s.loadOpenJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	var cv *models.CV
	if req.CVID != nil {
		if cv, err = s.ownedCV(ctx, studentID, *req.CVID); err != nil {
			return nil, err
		}
	}

	if err := s.supersedePending(ctx, studentID, job.ID); err != nil {
		return nil, err
	}

	if cv == nil {
		if cv, err = s.deps.CVs.ResolveActive(ctx, studentID); err != nil {
			return nil, err
		}
	}

	letter, err := s.deps.CoverLetters.Generate(ctx, CoverLetterRequest{Student: student, Job: job, CV: cv})
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate cover letter")
	}

	day := s.deps.Quota.Today()
	if _, err := s.deps.Quota.CheckAndReserve(ctx, studentID, day); err != nil {
		log.Infow("Submission rejected", logger.FieldError, err)
		return nil, err
	}

	recipientEmail, recipientName, err := ResolveRecipient(job)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		RecipientEmail: recipientEmail,
		RecipientName:  recipientName,
		CandidateName:  student.Name,
		CandidateEmail: student.Email,
		CandidatePhone: student.Phone,
		Institution:    student.Institution,
		FieldOfStudy:   student.FieldOfStudy,
		JobTitle:       job.Title,
		CompanyName:    job.CompanyName(),
		Subject:        s.subject(req.Subject, student, job),
		CoverLetter:    letter,
		CVViewURL:      s.cvViewURL(cv),
		CustomBody:     req.EmailBody,
		Attachments:    toAttachments(req.Attachments),
	}

	app := &models.Application{
		StudentID:    studentID,
		JobID:        job.ID,
		CVID:         cv.ID,
		Status:       models.StatusPending,
		CoverLetter:  letter,
		MatchScore:   s.deps.Matches.ProvisionalScore(ctx, student, job),
		EmailSubject: n.Subject,
		EmailBody:    n.Body(),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(app).Error; err != nil {
			return err
		}
		return recordEvent(tx, app, models.EventCreated, "")
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pending application")
	}
	log = log.With(logger.FieldApplicationID, app.ID)

	// The send is never cancelled by the caller going away; only the timeout bounds it.
	// From here on the outcome is recorded even if the request context is done.
	bg := context.WithoutCancel(ctx)
	dctx, cancel := context.WithTimeout(bg, s.deps.DispatchTimeout)
	started := time.Now()
	messageID, sendErr := s.deps.Dispatcher.Send(dctx, n)
	cancel()

	if sendErr != nil {
		log.Warnw("Application email failed", logger.FieldError, sendErr, logger.FieldDurationMS, time.Since(started).Milliseconds())
		if err := recordEvent(s.DB.WithContext(bg), app, models.EventNotificationFailed, sendErr.Error()); err != nil {
			log.Errorw("Failed to record notification failure", logger.FieldError, err)
		}
		return nil, errors.NotificationFailed(sendErr)
	}

	count, err := s.commitSubmitted(bg, app, day, messageID, req.Attachments)
	if err != nil {
		if errors.Is(err, errors.ErrDuplicateSubmission) {
			log.Warnw("Concurrent submission already committed", logger.FieldError, err)
			return nil, err
		}
		// The email is out but the outcome could not be stored; the row stays PENDING.
		log.Errorw("Failed to commit submitted application", logger.FieldError, err)
		return nil, err
	}

	log.Infow("Application submitted", logger.FieldCount, count, "message_id", messageID)
	submitted, err := s.get(bg, app.ID)
	if err != nil {
		return nil, err
	}
	remaining := s.deps.Quota.Limit() - count
	if remaining < 0 {
		remaining = 0
	}
	return &SubmitResult{Application: submitted, EmailsSentToday: count, EmailsRemaining: remaining}, nil
}

// commitSubmitted moves app to SUBMITTED, counts the send and marks the match viewed, atomically.
func (s *ApplicationService) commitSubmitted(ctx context.Context, app *models.Application, day, messageID string, attachments []dtos.AttachmentPayload) (int, error) {
	manifest, err := attachmentManifest(attachments)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var count int
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":           models.StatusSubmitted,
			"email_sent":       true,
			"email_sent_at":    now,
			"applied_at":       now,
			"last_updated_at":  now,
			"email_message_id": messageID,
			"attachments":      manifest,
		}
		res := tx.Model(&models.Application{}).
			Where("id = ? AND status = ?", app.ID, models.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Pending row superseded meanwhile by another process; store the outcome anyway.
			app.ID = 0
			app.Status = models.StatusSubmitted
			app.EmailSent = true
			app.EmailSentAt, app.AppliedAt, app.LastUpdatedAt = &now, &now, &now
			app.EmailMessageID = messageID
			app.Attachments = manifest
			if err := tx.Create(app).Error; err != nil {
				return err
			}
		}

		var err error
		if count, err = s.deps.Quota.Commit(ctx, tx, app.StudentID, day); err != nil {
			return err
		}
		if err := s.deps.Matches.MarkViewed(ctx, tx, app.StudentID, app.JobID); err != nil {
			return err
		}
		return recordEvent(tx, app, models.EventSubmitted, messageID)
	})
	if database.IsUniqueViolation(err) {
		return 0, errors.Wrapf(errors.ErrDuplicateSubmission, "student %d job %d", app.StudentID, app.JobID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to commit submitted application")
	}
	return count, nil
}

// supersedePending fails if the pair was already notified, otherwise deletes stale pending attempts.
func (s *ApplicationService) supersedePending(ctx context.Context, studentID, jobID uint) error {
	var existing []models.Application
	if err := s.DB.WithContext(ctx).
		Where("student_id = ? AND job_id = ?", studentID, jobID).
		Find(&existing).Error; err != nil {
		return errors.Wrap(err, "failed to look up existing applications")
	}

	for _, app := range existing {
		if app.EmailSent || app.Status == models.StatusSubmitted {
			return errors.Wrapf(errors.ErrDuplicateSubmission, "application %d", app.ID)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range existing {
			if err := tx.Delete(&models.Application{}, existing[i].ID).Error; err != nil {
				return errors.Wrapf(err, "failed to delete pending application %d", existing[i].ID)
			}
			if err := recordEvent(tx, &existing[i], models.EventSuperseded, ""); err != nil {
				return err
			}
			s.log.Debugw("Superseded pending application", logger.FieldApplicationID, existing[i].ID)
		}
		return nil
	})
}

// Withdraw deletes a PENDING application owned by studentID.
func (s *ApplicationService) Withdraw(ctx context.Context, studentID, applicationID uint) error {
	app, err := s.Get(ctx, studentID, applicationID)
	if err != nil {
		return err
	}
	if app.Status != models.StatusPending || app.EmailSent {
		return errors.WithHint(
			errors.Wrapf(errors.ErrInvalidStateTransition, "application %d is %s", app.ID, app.Status),
			"submitted applications cannot be withdrawn")
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("status = ?", models.StatusPending).Delete(&models.Application{}, app.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(errors.ErrInvalidStateTransition, "application %d is no longer pending", app.ID)
		}
		return recordEvent(tx, app, models.EventWithdrawn, "")
	})
	if err != nil {
		if errors.Is(err, errors.ErrInvalidStateTransition) {
			return err
		}
		return errors.Wrapf(err, "failed to withdraw application %d", app.ID)
	}

	s.log.Infow("Application withdrawn", logger.FieldStudentID, studentID, logger.FieldApplicationID, app.ID)
	return nil
}

// Get returns an application owned by studentID. Other students' applications are reported as not found.
func (s *ApplicationService) Get(ctx context.Context, studentID, applicationID uint) (*models.Application, error) {
	app, err := s.get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.StudentID != studentID {
		return nil, errors.NotFoundf("application %d", applicationID)
	}
	return app, nil
}

// List returns the student's applications, newest first.
func (s *ApplicationService) List(ctx context.Context, studentID uint) ([]models.Application, error) {
	var apps []models.Application
	err := s.DB.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC, id DESC").
		Find(&apps).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list applications")
	}
	return apps, nil
}

// QuotaStatus reports today's sends for the student.
func (s *ApplicationService) QuotaStatus(ctx context.Context, studentID uint) (*dtos.QuotaResponse, error) {
	if _, err := s.loadStudent(ctx, studentID); err != nil {
		return nil, err
	}
	res, err := s.deps.Quota.Status(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return &dtos.QuotaResponse{
		Day:             res.Day,
		EmailsSentToday: res.CurrentCount,
		EmailsRemaining: res.Remaining(),
		DailyLimit:      res.Limit,
	}, nil
}

func (s *ApplicationService) get(ctx context.Context, applicationID uint) (*models.Application, error) {
	var app models.Application
	if err := s.DB.WithContext(ctx).First(&app, applicationID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.NotFoundf("application %d", applicationID)
		}
		return nil, errors.Wrapf(err, "failed to load application %d", applicationID)
	}
	return &app, nil
}

func (s *ApplicationService) loadStudent(ctx context.Context, studentID uint) (*models.Student, error) {
	var student models.Student
	if err := s.DB.WithContext(ctx).First(&student, studentID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.NotFoundf("student %d", studentID)
		}
		return nil, errors.Wrapf(err, "failed to load student %d", studentID)
	}
	return &student, nil
}

// loadOpenJob loads an active job with the associations recipient resolution needs.
func (s *ApplicationService) loadOpenJob(ctx context.Context, jobID uint) (*models.Job, error) {
	var job models.Job
	err := s.DB.WithContext(ctx).Preload("Employer").Preload("Company").First(&job, jobID).Error
	if database.IsNotFound(err) {
		return nil, errors.NotFoundf("job %d", jobID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load job %d", jobID)
	}
	if !job.Active {
		return nil, errors.WithHint(errors.NotFoundf("job %d", jobID), "the posting is closed")
	}
	return &job, nil
}

func (s *ApplicationService) ownedCV(ctx context.Context, studentID, cvID uint) (*models.CV, error) {
	cv, err := s.deps.CVs.Resolve(ctx, cvID)
	if err != nil {
		return nil, err
	}
	if cv.StudentID != studentID {
		return nil, errors.NotFoundf("cv %d for student %d", cvID, studentID)
	}
	return cv, nil
}

func (s *ApplicationService) subject(requested string, student *models.Student, job *models.Job) string {
	if subject := strings.TrimSpace(requested); subject != "" {
		return subject
	}
	return fmt.Sprintf("Application for %s: %s", job.Title, student.Name)
}

func (s *ApplicationService) cvViewURL(cv *models.CV) string {
	if cv.FileURL != "" {
		return cv.FileURL
	}
	return fmt.Sprintf("%s/api/v1/students/%d/cvs/%d", s.deps.PublicBaseURL, cv.StudentID, cv.ID)
}

func toAttachments(payloads []dtos.AttachmentPayload) []Attachment {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, Attachment{Filename: p.Filename, ContentType: p.ContentType, Data: p.Data})
	}
	return out
}

func attachmentManifest(payloads []dtos.AttachmentPayload) (datatypes.JSON, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	manifest := make([]models.AttachmentInfo, 0, len(payloads))
	for _, p := range payloads {
		manifest = append(manifest, models.AttachmentInfo{Filename: p.Filename, ContentType: p.ContentType, Size: len(p.Data)})
	}
	b, err := json.Marshal(manifest)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode attachment manifest")
	}
	return datatypes.JSON(b), nil
}

func recordEvent(tx *gorm.DB, app *models.Application, eventType, details string) error {
	ev := models.ApplicationEvent{
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		JobID:         app.JobID,
		EventType:     eventType,
		Details:       details,
	}
	if err := tx.Create(&ev).Error; err != nil {
		return errors.Wrapf(err, "failed to record %s event", eventType)
	}
	return nil
}

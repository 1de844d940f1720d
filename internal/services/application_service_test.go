package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justsurfingit/campus-job-board/internal/dtos"
	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

func submitReq(jobID uint) *dtos.ApplicationRequest {
	return &dtos.ApplicationRequest{JobID: jobID, Subject: "Backend internship", EmailBody: "Hello, please find my application."}
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
	require.NoError(t, err)

	app := res.Application
	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.True(t, app.EmailSent)
	require.NotNil(t, app.AppliedAt)
	require.NotNil(t, app.LastUpdatedAt)
	require.NotNil(t, app.EmailSentAt)
	assert.True(t, app.AppliedAt.Equal(f.clock.Now()))
	assert.Equal(t, f.cv.ID, app.CVID)
	assert.Equal(t, "msg-1", app.EmailMessageID)
	assert.Equal(t, "Backend internship", app.EmailSubject)
	assert.Contains(t, app.EmailBody, "Hello, please find my application.")
	assert.Equal(t, "Cover letter from Sam Lee for Backend Intern", app.CoverLetter)

	assert.Equal(t, 1, res.EmailsSentToday)
	assert.Equal(t, 9, res.EmailsRemaining)
	assert.Equal(t, 1, f.sentToday(t, f.student.ID))

	n := f.dispatcher.last()
	require.NotNil(t, n)
	assert.Equal(t, "hr@acme.test", n.RecipientEmail)
	assert.Equal(t, DefaultRecipientName, n.RecipientName)
	assert.Equal(t, "sam@uni.test", n.CandidateEmail)
	assert.Equal(t, "555-0100", n.CandidatePhone)
	assert.Equal(t, "State U", n.Institution)
	assert.Equal(t, "Acme", n.CompanyName)
	assert.Equal(t, "https://files.test/sam.pdf", n.CVViewURL)

	assert.Equal(t, []string{models.EventCreated, models.EventSubmitted}, f.events(t, f.student.ID))
}

func TestSubmit_DefaultSubjectAndCVLink(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.cv).Update("file_url", "").Error)

	res, err := f.apps.Submit(context.Background(), f.student.ID, &dtos.ApplicationRequest{JobID: f.job.ID})
	require.NoError(t, err)

	assert.Equal(t, "Application for Backend Intern: Sam Lee", res.Application.EmailSubject)
	n := f.dispatcher.last()
	assert.Equal(t, fmt.Sprintf("http://jobs.test/api/v1/students/%d/cvs/%d", f.student.ID, f.cv.ID), n.CVViewURL)
	// Without a custom body the cover letter is the email
	assert.Contains(t, res.Application.EmailBody, "Cover letter from Sam Lee")
}

func TestSubmit_RecipientFallsBackToEmployer(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(t, "Data Intern", false)

	_, err := f.apps.Submit(context.Background(), f.student.ID, submitReq(job.ID))
	require.NoError(t, err)

	n := f.dispatcher.last()
	assert.Equal(t, "careers@uni.test", n.RecipientEmail)
	assert.Equal(t, "Pat Doe", n.RecipientName)
	assert.Equal(t, "Careers Office", n.CompanyName)
}

func TestSubmit_DuplicateAfterSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
	require.NoError(t, err)

	_, err = f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateSubmission))
	assert.Equal(t, errors.CategoryDuplicateSubmission, errors.Category(err))

	assert.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, 1, f.sentToday(t, f.student.ID))
	assert.Len(t, f.applications(t, f.student.ID, f.job.ID), 1)
}

func TestSubmit_SupersedesPendingAttempt(t *testing.T) {
	f := newFixture(t)
	stale := models.Application{StudentID: f.student.ID, JobID: f.job.ID, CVID: f.cv.ID, Status: models.StatusPending}
	require.NoError(t, f.db.Create(&stale).Error)

	res, err := f.apps.Submit(context.Background(), f.student.ID, submitReq(f.job.ID))
	require.NoError(t, err)

	apps := f.applications(t, f.student.ID, f.job.ID)
	require.Len(t, apps, 1)
	assert.NotEqual(t, stale.ID, apps[0].ID, "pending attempt is replaced, not updated")
	assert.Equal(t, res.Application.ID, apps[0].ID)
	assert.Equal(t, models.StatusSubmitted, apps[0].Status)
	assert.Equal(t, []string{models.EventSuperseded, models.EventCreated, models.EventSubmitted}, f.events(t, f.student.ID))
}

func TestSubmit_DispatchFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dispatcher.err = errors.New("smtp: 421 service not available")

	_, err := f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotificationFailed))
	assert.Contains(t, err.Error(), "421 service not available")

	apps := f.applications(t, f.student.ID, f.job.ID)
	require.Len(t, apps, 1)
	assert.Equal(t, models.StatusPending, apps[0].Status)
	assert.False(t, apps[0].EmailSent)
	assert.Nil(t, apps[0].AppliedAt)
	assert.Nil(t, apps[0].LastUpdatedAt)
	assert.Equal(t, 0, f.sentToday(t, f.student.ID), "failed sends do not consume quota")
	assert.Equal(t, []string{models.EventCreated, models.EventNotificationFailed}, f.events(t, f.student.ID))

	// A retry replaces the pending attempt
	f.dispatcher.err = nil
	res, err := f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, res.Application.Status)
	assert.Len(t, f.applications(t, f.student.ID, f.job.ID), 1)
	assert.Equal(t, 1, f.sentToday(t, f.student.ID))
}

func TestSubmit_EleventhSendExceedsQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		job := f.addJob(t, fmt.Sprintf("Job %d", i), true)
		res, err := f.apps.Submit(ctx, f.student.ID, submitReq(job.ID))
		require.NoError(t, err, "send %d", i)
		assert.Equal(t, i, res.EmailsSentToday)
		assert.Equal(t, 10-i, res.EmailsRemaining)
	}

	extra := f.addJob(t, "Job 11", true)
	_, err := f.apps.Submit(ctx, f.student.ID, submitReq(extra.ID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
	var qe *errors.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 10, qe.Used)
	assert.Equal(t, 10, qe.Limit)

	assert.Equal(t, 10, f.dispatcher.count(), "rejected submission is not sent")
	assert.Equal(t, 10, f.sentToday(t, f.student.ID))
	assert.Empty(t, f.applications(t, f.student.ID, extra.ID))

	// Next calendar day the student may send again
	f.clock.Advance(24 * time.Hour)
	res, err := f.apps.Submit(ctx, f.student.ID, submitReq(extra.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsSentToday)
}

func TestSubmit_NoActiveCV(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.cv).Update("active", false).Error)

	_, err := f.apps.Submit(context.Background(), f.student.ID, submitReq(f.job.ID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoActiveCV))
	assert.Equal(t, 0, f.letters.calls)
	assert.Equal(t, 0, f.dispatcher.count())
}

func TestSubmit_ExplicitCV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Model(&f.cv).Update("active", false).Error)
	other, err := f.cvs.Create(ctx, f.student.ID, "Research CV", "https://files.test/research.pdf")
	require.NoError(t, err)

	req := submitReq(f.job.ID)
	req.CVID = &other.ID
	res, err := f.apps.Submit(ctx, f.student.ID, req)
	require.NoError(t, err)
	assert.Equal(t, other.ID, res.Application.CVID)
	assert.Equal(t, "https://files.test/research.pdf", f.dispatcher.last().CVViewURL)
}

func TestSubmit_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, otherCV := f.addStudent(t, "Alex Kim", "alex@uni.test", "go")

	closed := f.addJob(t, "Closed", true)
	require.NoError(t, f.db.Model(&closed).Update("active", false).Error)

	missingCV := uint(9999)
	tests := []struct {
		name      string
		studentID uint
		req       *dtos.ApplicationRequest
	}{
		{"missing student", 9999, submitReq(f.job.ID)},
		{"missing job", f.student.ID, submitReq(9999)},
		{"inactive job", f.student.ID, submitReq(closed.ID)},
		{"missing cv", f.student.ID, &dtos.ApplicationRequest{JobID: f.job.ID, CVID: &missingCV}},
		{"someone else's cv", f.student.ID, &dtos.ApplicationRequest{JobID: f.job.ID, CVID: &otherCV.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.apps.Submit(ctx, tt.studentID, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.dispatcher.count())
}

func TestSubmit_CoverLetterFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.letters.err = errors.New("model overloaded")

	_, err := f.apps.Submit(context.Background(), f.student.ID, submitReq(f.job.ID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Equal(t, 0, f.dispatcher.count())
	assert.Empty(t, f.applications(t, f.student.ID, f.job.ID))
}

func TestSubmit_ConcurrentSamePair(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.onSend = func(context.Context) { time.Sleep(20 * time.Millisecond) }

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.apps.Submit(context.Background(), f.student.ID, submitReq(f.job.ID))
		}(i)
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, errors.ErrDuplicateSubmission):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, duplicates)
	assert.Equal(t, 1, f.dispatcher.count())

	var submitted int64
	require.NoError(t, f.db.Model(&models.Application{}).
		Where("student_id = ? AND job_id = ? AND status = ?", f.student.ID, f.job.ID, models.StatusSubmitted).
		Count(&submitted).Error)
	assert.EqualValues(t, 1, submitted)
}

func TestSubmit_CallerCancellationDoesNotAbortDispatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dispatchErr error
	f.dispatcher.onSend = func(dctx context.Context) {
		cancel()
		dispatchErr = dctx.Err()
	}

	res, err := f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
	require.NoError(t, err)
	assert.NoError(t, dispatchErr)
	assert.Equal(t, models.StatusSubmitted, res.Application.Status)
	assert.Equal(t, 1, f.sentToday(t, f.student.ID))
}

func TestSubmit_MarksMatchViewedAndUsesStoredScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := models.MatchRecord{StudentID: f.student.ID, JobID: f.job.ID, Score: 35, Explanation: "stored"}
	require.NoError(t, f.db.Create(&rec).Error)

	res, err := f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
	require.NoError(t, err)
	assert.Equal(t, 35.0, res.Application.MatchScore)

	got, err := f.matches.Get(ctx, f.student.ID, f.job.ID)
	require.NoError(t, err)
	assert.True(t, got.Viewed)
}

func TestSubmit_ProvisionalScoreWithoutMatchRecord(t *testing.T) {
	f := newFixture(t)

	// Student has "java"; job requires "java,sql": fallback is 100 * 1/2
	res, err := f.apps.Submit(context.Background(), f.student.ID, submitReq(f.job.ID))
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Application.MatchScore)
}

func TestSubmit_StoresAttachmentManifest(t *testing.T) {
	f := newFixture(t)
	req := submitReq(f.job.ID)
	req.Attachments = []dtos.AttachmentPayload{
		{Filename: "transcript.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 test")},
	}

	res, err := f.apps.Submit(context.Background(), f.student.ID, req)
	require.NoError(t, err)

	var manifest []models.AttachmentInfo
	require.NoError(t, json.Unmarshal(res.Application.Attachments, &manifest))
	require.Len(t, manifest, 1)
	assert.Equal(t, models.AttachmentInfo{Filename: "transcript.pdf", ContentType: "application/pdf", Size: 13}, manifest[0])
	require.Len(t, f.dispatcher.last().Attachments, 1)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := models.Application{StudentID: f.student.ID, JobID: f.job.ID, CVID: f.cv.ID, Status: models.StatusPending}
	require.NoError(t, f.db.Create(&pending).Error)

	t.Run("other student's application is not found", func(t *testing.T) {
		other, _ := f.addStudent(t, "Alex Kim", "alex@uni.test", "go")
		err := f.apps.Withdraw(ctx, other.ID, pending.ID)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("pending application is removed", func(t *testing.T) {
		require.NoError(t, f.apps.Withdraw(ctx, f.student.ID, pending.ID))
		assert.Empty(t, f.applications(t, f.student.ID, f.job.ID))
		assert.Contains(t, f.events(t, f.student.ID), models.EventWithdrawn)
	})

	t.Run("submitted application is immutable", func(t *testing.T) {
		res, err := f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
		require.NoError(t, err)

		err = f.apps.Withdraw(ctx, f.student.ID, res.Application.ID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidStateTransition))
		assert.Len(t, f.applications(t, f.student.ID, f.job.ID), 1)
	})

	t.Run("missing application", func(t *testing.T) {
		err := f.apps.Withdraw(ctx, f.student.ID, 9999)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestListAndQuotaStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := f.addJob(t, "Second", true)

	_, err := f.apps.Submit(ctx, f.student.ID, submitReq(f.job.ID))
	require.NoError(t, err)
	_, err = f.apps.Submit(ctx, f.student.ID, submitReq(second.ID))
	require.NoError(t, err)

	apps, err := f.apps.List(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	q, err := f.apps.QuotaStatus(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", q.Day)
	assert.Equal(t, 2, q.EmailsSentToday)
	assert.Equal(t, 8, q.EmailsRemaining)
	assert.Equal(t, 10, q.DailyLimit)

	_, err = f.apps.QuotaStatus(ctx, 9999)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

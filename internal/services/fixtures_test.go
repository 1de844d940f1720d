package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/justsurfingit/campus-job-board/internal/database/dbtest"
	"github.com/justsurfingit/campus-job-board/internal/logger"
	"github.com/justsurfingit/campus-job-board/internal/models"
	"github.com/justsurfingit/campus-job-board/internal/quota"
)

// fakeDispatcher records notifications instead of sending them.
type fakeDispatcher struct {
	mu     sync.Mutex
	sent   []*Notification
	err    error
	onSend func(ctx context.Context)
}

func (f *fakeDispatcher) Send(ctx context.Context, n *Notification) (string, error) {
	if f.onSend != nil {
		f.onSend(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, n)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeDispatcher) last() *Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeLetters struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeLetters) Generate(_ context.Context, req CoverLetterRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("Cover letter from %s for %s", req.Student.Name, req.Job.Title), nil
}

// recordingTrigger captures rematch requests.
type recordingTrigger struct {
	mu       sync.Mutex
	students []uint
	jobs     []uint
}

func (r *recordingTrigger) StudentChanged(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students = append(r.students, id)
}

func (r *recordingTrigger) JobChanged(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, id)
}

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

type fixture struct {
	db         *gorm.DB
	clock      *mockClock
	tracker    *quota.Tracker
	cvs        *CVService
	matches    *MatchService
	dispatcher *fakeDispatcher
	letters    *fakeLetters
	apps       *ApplicationService

	employer models.Employer
	company  models.Company
	student  models.Student
	cv       models.CV
	job      models.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	log := logger.Nop()

	f := &fixture{
		db:         db,
		clock:      &mockClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		dispatcher: &fakeDispatcher{},
		letters:    &fakeLetters{},
	}
	f.tracker = quota.NewTrackerWithClock(db, quota.DefaultDailyLimit, time.UTC, f.clock.Now)
	f.cvs = NewCVService(db, log)
	f.matches = NewMatchService(db, 0, log)
	f.apps = NewApplicationService(db, ApplicationDeps{
		Quota:           f.tracker,
		CVs:             f.cvs,
		Matches:         f.matches,
		CoverLetters:    f.letters,
		Dispatcher:      f.dispatcher,
		DispatchTimeout: time.Second,
		PublicBaseURL:   "http://jobs.test/",
	}, log)
	f.apps.now = f.clock.Now

	f.employer = models.Employer{Name: "Careers Office", ContactName: "Pat Doe", ContactEmail: "careers@uni.test"}
	require.NoError(t, db.Create(&f.employer).Error)

	hrEmail := "hr@acme.test"
	f.company = models.Company{Name: "Acme", HREmail: &hrEmail}
	require.NoError(t, db.Create(&f.company).Error)

	f.student = models.Student{Name: "Sam Lee", Email: "sam@uni.test", Phone: "555-0100", Institution: "State U", FieldOfStudy: "CS", Skills: "java"}
	require.NoError(t, db.Create(&f.student).Error)

	f.cv = models.CV{StudentID: f.student.ID, Title: "Main CV", FileURL: "https://files.test/sam.pdf", Active: true}
	require.NoError(t, db.Create(&f.cv).Error)

	f.job = f.addJob(t, "Backend Intern", true)
	return f
}

// addJob creates an open job; withCompany routes notifications to the company HR contact.
func (f *fixture) addJob(t *testing.T, title string, withCompany bool) models.Job {
	t.Helper()
	job := models.Job{
		EmployerID:      f.employer.ID,
		Title:           title,
		RequiredSkills:  "java,sql",
		PreferredSkills: "docker",
		Active:          true,
	}
	if withCompany {
		job.CompanyID = &f.company.ID
	}
	require.NoError(t, f.db.Create(&job).Error)
	return job
}

func (f *fixture) addStudent(t *testing.T, name, email, skills string) (models.Student, models.CV) {
	t.Helper()
	st := models.Student{Name: name, Email: email, Skills: skills}
	require.NoError(t, f.db.Create(&st).Error)
	cv := models.CV{StudentID: st.ID, Title: name + " CV", Active: true}
	require.NoError(t, f.db.Create(&cv).Error)
	return st, cv
}

func (f *fixture) applications(t *testing.T, studentID, jobID uint) []models.Application {
	t.Helper()
	var apps []models.Application
	require.NoError(t, f.db.Where("student_id = ? AND job_id = ?", studentID, jobID).Order("id").Find(&apps).Error)
	return apps
}

func (f *fixture) events(t *testing.T, studentID uint) []string {
	t.Helper()
	var evs []models.ApplicationEvent
	require.NoError(t, f.db.Where("student_id = ?", studentID).Order("id").Find(&evs).Error)
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.EventType)
	}
	return out
}

func (f *fixture) sentToday(t *testing.T, studentID uint) int {
	t.Helper()
	res, err := f.tracker.Status(context.Background(), studentID)
	require.NoError(t, err)
	return res.CurrentCount
}

package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/logger"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

func TestMatchService_RecalculateUpsertsInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.matches.Recalculate(ctx, &f.student, &f.job)
	require.NoError(t, err)
	require.NotNil(t, rec)
	// java of java,sql; nothing preferred: 70 * 1/2
	assert.Equal(t, 35.0, rec.Score)
	assert.Contains(t, rec.Explanation, "Missing required: sql")

	_, err = f.matches.View(ctx, f.student.ID, f.job.ID)
	require.NoError(t, err)

	f.student.Skills = "Java, SQL, Docker"
	rec2, err := f.matches.Recalculate(ctx, &f.student, &f.job)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, rec2.ID, "recomputation updates the existing record")
	assert.Equal(t, 100.0, rec2.Score)
	assert.True(t, rec2.Viewed, "viewed flag survives recomputation")

	var n int64
	require.NoError(t, f.db.Model(&models.MatchRecord{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestMatchService_MinScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewMatchService(f.db, 50, logger.Nop())

	rec, err := svc.Recalculate(ctx, &f.student, &f.job)
	require.NoError(t, err)
	assert.Nil(t, rec, "low scores create no record")

	existing := models.MatchRecord{StudentID: f.student.ID, JobID: f.job.ID, Score: 90, Viewed: true}
	require.NoError(t, f.db.Create(&existing).Error)

	rec, err = svc.Recalculate(ctx, &f.student, &f.job)
	require.NoError(t, err)
	require.NotNil(t, rec, "existing records are always kept current")
	assert.Equal(t, 35.0, rec.Score)
	assert.True(t, rec.Viewed)
}

func TestMatchService_ListForStudentSkipsInactiveJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := f.addJob(t, "Other", true)
	closed := f.addJob(t, "Closed", true)
	for _, rec := range []models.MatchRecord{
		{StudentID: f.student.ID, JobID: f.job.ID, Score: 40},
		{StudentID: f.student.ID, JobID: other.ID, Score: 80},
		{StudentID: f.student.ID, JobID: closed.ID, Score: 95},
	} {
		require.NoError(t, f.db.Create(&rec).Error)
	}
	require.NoError(t, f.db.Model(&closed).Update("active", false).Error)

	recs, err := f.matches.ListForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, other.ID, recs[0].JobID)
	assert.Equal(t, f.job.ID, recs[1].JobID)
}

func TestMatchService_ViewMarksViewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.matches.View(ctx, f.student.ID, f.job.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, f.db.Create(&models.MatchRecord{StudentID: f.student.ID, JobID: f.job.ID, Score: 10}).Error)
	rec, err := f.matches.View(ctx, f.student.ID, f.job.ID)
	require.NoError(t, err)
	assert.True(t, rec.Viewed)

	stored, err := f.matches.Get(ctx, f.student.ID, f.job.ID)
	require.NoError(t, err)
	assert.True(t, stored.Viewed)
}

func TestMatchService_ProvisionalScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Fallback uses raw required skills only: java of java,sql
	assert.Equal(t, 50.0, f.matches.ProvisionalScore(ctx, &f.student, &f.job))

	require.NoError(t, f.db.Create(&models.MatchRecord{StudentID: f.student.ID, JobID: f.job.ID, Score: 12.5}).Error)
	assert.Equal(t, 12.5, f.matches.ProvisionalScore(ctx, &f.student, &f.job))

	empty := models.Student{ID: 999}
	assert.Equal(t, 0.0, f.matches.ProvisionalScore(ctx, &empty, &f.job))
}

func TestMatchService_Candidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noCV := models.Student{Name: "No CV", Email: "nocv@uni.test"}
	require.NoError(t, f.db.Create(&noCV).Error)
	withCV, _ := f.addStudent(t, "Alex Kim", "alex@uni.test", "go")

	students, err := f.matches.CandidateStudents(ctx)
	require.NoError(t, err)
	ids := []uint{}
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []uint{f.student.ID, withCV.ID}, ids)

	jobs, err := f.matches.OpenJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, f.job.ID, jobs[0].ID)
}

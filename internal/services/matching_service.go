package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justsurfingit/campus-job-board/internal/database"
	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/matching"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

// MatchService persists match records: one per (student, job), updated in place.
type MatchService struct {
	DB       *gorm.DB
	minScore float64
	log      *zap.SugaredLogger
}

// NewMatchService creates the service. Pairs scoring below minScore get no new
// record; existing records are always kept current.
func NewMatchService(db *gorm.DB, minScore float64, log *zap.SugaredLogger) *MatchService {
	return &MatchService{DB: db, minScore: minScore, log: log}
}

// Recalculate scores the pair and upserts its record. The viewed flag is never reset.
// A nil record with a nil error means the pair scored below the creation threshold.
func (s *MatchService) Recalculate(ctx context.Context, student *models.Student, job *models.Job) (*models.MatchRecord, error) {
	b := matching.Evaluate(
		matching.ParseSkills(student.Skills),
		matching.ParseSkills(job.RequiredSkills),
		matching.ParseSkills(job.PreferredSkills),
	)

	db := s.DB.WithContext(ctx)
	if b.Score < s.minScore {
		existing, err := s.Get(ctx, student.ID, job.ID)
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		err = db.Model(existing).Updates(map[string]interface{}{
			"score":       b.Score,
			"explanation": b.Explanation(),
		}).Error
		if err != nil {
			return nil, errors.Wrapf(err, "failed to update match for student %d job %d", student.ID, job.ID)
		}
		return s.Get(ctx, student.ID, job.ID)
	}

	rec := models.MatchRecord{
		StudentID:   student.ID,
		JobID:       job.ID,
		Score:       b.Score,
		Explanation: b.Explanation(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "job_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"score":       b.Score,
			"explanation": b.Explanation(),
			"updated_at":  time.Now(),
		}),
	}).Create(&rec).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to upsert match for student %d job %d", student.ID, job.ID)
	}
	return s.Get(ctx, student.ID, job.ID)
}

// Get returns the record for a pair.
func (s *MatchService) Get(ctx context.Context, studentID, jobID uint) (*models.MatchRecord, error) {
	var rec models.MatchRecord
	err := s.DB.WithContext(ctx).Where("student_id = ? AND job_id = ?", studentID, jobID).Take(&rec).Error
	if database.IsNotFound(err) {
		return nil, errors.NotFoundf("match for student %d and job %d", studentID, jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load match")
	}
	return &rec, nil
}

// View returns the record and marks it viewed.
func (s *MatchService) View(ctx context.Context, studentID, jobID uint) (*models.MatchRecord, error) {
	rec, err := s.Get(ctx, studentID, jobID)
	if err != nil {
		return nil, err
	}
	if !rec.Viewed {
		if err := s.MarkViewed(ctx, s.DB, studentID, jobID); err != nil {
			return nil, err
		}
		rec.Viewed = true
	}
	return rec, nil
}

// MarkViewed flags the pair's record as viewed, if one exists. Pass tx to join a transaction.
func (s *MatchService) MarkViewed(ctx context.Context, tx *gorm.DB, studentID, jobID uint) error {
	if tx == nil {
		tx = s.DB
	}
	err := tx.WithContext(ctx).Model(&models.MatchRecord{}).
		Where("student_id = ? AND job_id = ?", studentID, jobID).
		Update("viewed", true).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark match viewed")
	}
	return nil
}

// ListForStudent returns the student's matches against open jobs, best first.
func (s *MatchService) ListForStudent(ctx context.Context, studentID uint) ([]models.MatchRecord, error) {
	var recs []models.MatchRecord
	err := s.DB.WithContext(ctx).
		Joins("JOIN jobs ON jobs.id = match_records.job_id").
		Where("match_records.student_id = ? AND jobs.active = ?", studentID, true).
		Order("match_records.score DESC, match_records.job_id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list matches")
	}
	return recs, nil
}

// ProvisionalScore is the score shown on an application: the stored match
// score if the pair has been scored, otherwise the inline fallback estimate.
func (s *MatchService) ProvisionalScore(ctx context.Context, student *models.Student, job *models.Job) float64 {
	if rec, err := s.Get(ctx, student.ID, job.ID); err == nil {
		return rec.Score
	}
	return matching.FallbackScore(matching.SplitRaw(student.Skills), matching.SplitRaw(job.RequiredSkills))
}

// CandidateStudents returns every student with an active CV.
func (s *MatchService) CandidateStudents(ctx context.Context) ([]models.Student, error) {
	db := s.DB.WithContext(ctx)
	var students []models.Student
	err := db.Where("id IN (?)", db.Model(&models.CV{}).Select("student_id").Where("active = ?", true)).
		Order("id").
		Find(&students).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list candidate students")
	}
	return students, nil
}

// OpenJobs returns every active job.
func (s *MatchService) OpenJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	if err := s.DB.WithContext(ctx).Where("active = ?", true).Order("id").Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list open jobs")
	}
	return jobs, nil
}

// Student loads a student for recalculation.
func (s *MatchService) Student(ctx context.Context, studentID uint) (*models.Student, error) {
	var st models.Student
	if err := s.DB.WithContext(ctx).First(&st, studentID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.NotFoundf("student %d", studentID)
		}
		return nil, err
	}
	return &st, nil
}

// Job loads a job for recalculation.
func (s *MatchService) Job(ctx context.Context, jobID uint) (*models.Job, error) {
	var job models.Job
	if err := s.DB.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.NotFoundf("job %d", jobID)
		}
		return nil, err
	}
	return &job, nil
}

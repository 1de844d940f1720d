package services

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/justsurfingit/campus-job-board/internal/database"
	"github.com/justsurfingit/campus-job-board/internal/dtos"
	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/matching"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

type JobService struct {
	DB      *gorm.DB
	rematch RematchTrigger
	log     *zap.SugaredLogger
}

func NewJobService(db *gorm.DB, rematch RematchTrigger, log *zap.SugaredLogger) *JobService {
	return &JobService{
		DB:      db,
		rematch: rematch,
		log:     log,
	}
}

// CreateJob stores a posting, creating the company if it does not exist yet, and queues a re-match.
func (s *JobService) CreateJob(ctx context.Context, req *dtos.JobCreationRequest) (*models.Job, error) {
	db := s.DB.WithContext(ctx)

	var employer models.Employer
	if err := db.First(&employer, req.EmployerID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.NotFoundf("employer %d", req.EmployerID)
		}
		return nil, errors.Wrap(err, "failed to load employer")
	}

	job := &models.Job{
		EmployerID:      employer.ID,
		Title:           req.Title,
		Description:     req.Description,
		RequiredSkills:  matching.JoinSkills(req.RequiredSkills),
		PreferredSkills: matching.JoinSkills(req.PreferredSkills),
		Active:          true,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if req.CompanyName != "" {
			var company models.Company
			// it creates an entry if it doesn't already exist
			if err := tx.Where(models.Company{Name: req.CompanyName}).
				Attrs(models.Company{HRName: req.HRName, HREmail: req.HREmail}).
				FirstOrCreate(&company).Error; err != nil {
				return err
			}
			job.CompanyID = &company.ID
		}
		return tx.Create(job).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create job")
	}

	s.log.Infow("Job created", "job_id", job.ID, "title", job.Title)
	if s.rematch != nil {
		s.rematch.JobChanged(job.ID)
	}
	return s.GetJob(ctx, job.ID)
}

// GetJob loads a job with its employer and company, active or not.
func (s *JobService) GetJob(ctx context.Context, jobID uint) (*models.Job, error) {
	var job models.Job
	err := s.DB.WithContext(ctx).Preload("Employer").Preload("Company").First(&job, jobID).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.NotFoundf("job %d", jobID)
		}
		return nil, errors.Wrapf(err, "failed to load job %d", jobID)
	}
	return &job, nil
}

// ListOpenJobs returns active jobs, newest first.
func (s *JobService) ListOpenJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := s.DB.WithContext(ctx).
		Preload("Company").
		Where("active = ?", true).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	return jobs, nil
}

// SetActive activates or deactivates a job. Activation queues a re-match.
func (s *JobService) SetActive(ctx context.Context, jobID uint, active bool) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Active == active {
		return job, nil
	}

	if err := s.DB.WithContext(ctx).Model(&models.Job{}).Where("id = ?", jobID).Update("active", active).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to update job %d", jobID)
	}
	job.Active = active

	s.log.Infow("Job activation changed", "job_id", jobID, "active", active)
	if active && s.rematch != nil {
		s.rematch.JobChanged(jobID)
	}
	return job, nil
}

package services

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/justsurfingit/campus-job-board/internal/database"
	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

type CVService struct {
	DB  *gorm.DB
	log *zap.SugaredLogger
}

func NewCVService(db *gorm.DB, log *zap.SugaredLogger) *CVService {
	return &CVService{DB: db, log: log}
}

// Resolve loads a CV by id.
func (s *CVService) Resolve(ctx context.Context, cvID uint) (*models.CV, error) {
	var cv models.CV
	if err := s.DB.WithContext(ctx).First(&cv, cvID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.NotFoundf("cv %d", cvID)
		}
		return nil, errors.Wrapf(err, "failed to load cv %d", cvID)
	}
	return &cv, nil
}

// ResolveActive returns the student's active CV, or ErrNoActiveCV.
func (s *CVService) ResolveActive(ctx context.Context, studentID uint) (*models.CV, error) {
	var cv models.CV
	err := s.DB.WithContext(ctx).
		Where("student_id = ? AND active = ?", studentID, true).
		Order("updated_at DESC").
		First(&cv).Error
	if database.IsNotFound(err) {
		return nil, errors.Wrapf(errors.ErrNoActiveCV, "student %d", studentID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load active cv for student %d", studentID)
	}
	return &cv, nil
}

// Create stores a new, inactive CV for the student.
func (s *CVService) Create(ctx context.Context, studentID uint, title, fileURL string) (*models.CV, error) {
	cv := &models.CV{StudentID: studentID, Title: title, FileURL: fileURL}
	if err := s.DB.WithContext(ctx).Create(cv).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create cv")
	}
	return cv, nil
}

// Activate makes cvID the student's only active CV.
func (s *CVService) Activate(ctx context.Context, studentID, cvID uint) (*models.CV, error) {
	var cv models.CV
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND student_id = ?", cvID, studentID).First(&cv).Error; err != nil {
			if database.IsNotFound(err) {
				return errors.NotFoundf("cv %d for student %d", cvID, studentID)
			}
			return err
		}
		if err := tx.Model(&models.CV{}).
			Where("student_id = ? AND id <> ?", studentID, cvID).
			Update("active", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&cv).Update("active", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.Student{}).Where("id = ?", studentID).Update("active_cv_id", cvID).Error
	})
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "failed to activate cv %d", cvID)
	}

	s.log.Infow("Activated CV", "student_id", studentID, "cv_id", cvID)
	return &cv, nil
}

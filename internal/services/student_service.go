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

// RematchTrigger queues background match recalculation. Implementations must not block.
type RematchTrigger interface {
	StudentChanged(studentID uint)
	JobChanged(jobID uint)
}

type StudentService struct {
	DB      *gorm.DB
	rematch RematchTrigger
	log     *zap.SugaredLogger
}

func NewStudentService(db *gorm.DB, rematch RematchTrigger, log *zap.SugaredLogger) *StudentService {
	return &StudentService{DB: db, rematch: rematch, log: log}
}

// Get loads a student by id.
func (s *StudentService) Get(ctx context.Context, studentID uint) (*models.Student, error) {
	var student models.Student
	if err := s.DB.WithContext(ctx).First(&student, studentID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.NotFoundf("student %d", studentID)
		}
		return nil, errors.Wrapf(err, "failed to load student %d", studentID)
	}
	return &student, nil
}

// UpdateProfile overwrites only the fields set in req, then queues a re-match.
func (s *StudentService) UpdateProfile(ctx context.Context, studentID uint, req *dtos.StudentUpdateRequest) (*models.Student, error) {
	student, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Institution != nil {
		updates["institution"] = *req.Institution
	}
	if req.FieldOfStudy != nil {
		updates["field_of_study"] = *req.FieldOfStudy
	}
	if req.Skills != nil {
		updates["skills"] = matching.JoinSkills(req.Skills)
	}
	if len(updates) == 0 {
		return student, nil
	}

	if err := s.DB.WithContext(ctx).Model(student).Updates(updates).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to update student %d", studentID)
	}

	// The profile update succeeds regardless of what happens to the re-match
	if s.rematch != nil {
		s.rematch.StudentChanged(studentID)
	}
	return s.Get(ctx, studentID)
}

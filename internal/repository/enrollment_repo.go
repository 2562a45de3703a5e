package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// ErrDuplicateEnrollment is returned when the student is already enrolled in the course.
var ErrDuplicateEnrollment = errors.New("enrollment already exists")

// EnrollmentRepository persists enrollments together with their initial visibility rows.
type EnrollmentRepository interface {
	Get(ctx context.Context, studentID, courseID uint) (models.Enrollment, error)
	CreateWithVisibility(ctx context.Context, enrollment *models.Enrollment, chapters []models.ChapterVisibility, subchapters []models.SubchapterVisibility) error
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository constructs the enrollment repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) Get(ctx context.Context, studentID, courseID uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&enrollment).Error; err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

// CreateWithVisibility writes the enrollment and every visibility row in one transaction.
func (r *enrollmentRepository) CreateWithVisibility(ctx context.Context, enrollment *models.Enrollment, chapters []models.ChapterVisibility, subchapters []models.SubchapterVisibility) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Course", "Student").Create(enrollment).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEnrollment
			}
			return err
		}
		if len(chapters) > 0 {
			if err := tx.Omit("Chapter").CreateInBatches(&chapters, 100).Error; err != nil {
				return err
			}
		}
		if len(subchapters) > 0 {
			if err := tx.Omit("Subchapter").CreateInBatches(&subchapters, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "23505")
}

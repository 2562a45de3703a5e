package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// ErrStatusConflict is returned when a conditional status transition matched no row.
var ErrStatusConflict = errors.New("submission status changed concurrently")

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	StudentID    *uint
	CourseID     *uint
	SubchapterID *uint
	Status       *string
}

// ProgressUnlock opens the next subchapter for a student once the current one is approved.
type ProgressUnlock struct {
	StudentID    uint
	SubchapterID uint
	CanSubmit    bool
	At           time.Time
}

// FinalizeParams captures a terminal review decision.
// From lists the statuses the submission may currently hold.
type FinalizeParams struct {
	SubmissionID uint
	From         []string
	Status       string
	Review       models.Review
	Unlock       *ProgressUnlock
}

// SubmissionRepository defines data operations for submissions and their grading artefacts.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	SaveGradingResult(ctx context.Context, submissionID uint, tasks []models.Task, result models.AIResult) error
	TransitionStatus(ctx context.Context, id uint, from []string, to string) error
	Finalize(ctx context.Context, params FinalizeParams) (bool, error)
	GetTask(ctx context.Context, id uint) (models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uint) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Subchapter.Chapter.Course").
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("task_number ASC")
		}).
		Preload("AIResult").
		Preload("Review")
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx).Select("submissions.*")

	if filter.CourseID != nil {
		query = query.
			Joins("JOIN subchapters ON subchapters.id = submissions.subchapter_id").
			Joins("JOIN chapters ON chapters.id = subchapters.chapter_id").
			Where("chapters.course_id = ?", *filter.CourseID)
	}

	if filter.StudentID != nil {
		query = query.Where("submissions.student_id = ?", *filter.StudentID)
	}

	if filter.SubchapterID != nil {
		query = query.Where("submissions.subchapter_id = ?", *filter.SubchapterID)
	}

	if filter.Status != nil {
		query = query.Where("submissions.status = ?", *filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("submissions.submitted_at DESC, submissions.id DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

// SaveGradingResult moves a pending submission to ai_checked and stores its tasks and raw result atomically.
func (r *submissionRepository) SaveGradingResult(ctx context.Context, submissionID uint, tasks []models.Task, result models.AIResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", submissionID, models.SubmissionStatusPending).
			Update("status", models.SubmissionStatusAIChecked)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStatusConflict
		}

		for i := range tasks {
			tasks[i].SubmissionID = submissionID
		}
		if len(tasks) > 0 {
			if err := tx.Create(&tasks).Error; err != nil {
				return err
			}
		}

		result.SubmissionID = submissionID
		return tx.Create(&result).Error
	})
}

// TransitionStatus sets the status to `to` only while it is one of `from`.
func (r *submissionRepository) TransitionStatus(ctx context.Context, id uint, from []string, to string) error {
	res := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// Finalize stores the review, the terminal status and an optional progress unlock in one transaction.
// A submission outside params.From is left untouched and ErrStatusConflict is returned.
// It reports whether the unlock opened a subchapter.
func (r *submissionRepository) Finalize(ctx context.Context, params FinalizeParams) (bool, error) {
	unlocked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Submission{}).
			Where("id = ? AND status IN ?", params.SubmissionID, params.From).
			Update("status", params.Status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Submission{}).Where("id = ?", params.SubmissionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return gorm.ErrRecordNotFound
			}
			return ErrStatusConflict
		}

		review := params.Review
		review.SubmissionID = params.SubmissionID
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "submission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"teacher_id", "approved", "general_comment", "reviewed_at", "updated_at"}),
		}).Create(&review).Error; err != nil {
			return err
		}

		if params.Unlock == nil {
			return nil
		}

		unlock := params.Unlock
		res = tx.Model(&models.SubchapterVisibility{}).
			Where("subchapter_id = ? AND student_id = ? AND is_visible = ? AND unlocked_at IS NULL", unlock.SubchapterID, unlock.StudentID, false).
			Updates(map[string]interface{}{
				"is_visible":  true,
				"can_submit":  unlock.CanSubmit,
				"unlocked_at": unlock.At,
			})
		if res.Error != nil {
			return res.Error
		}
		unlocked = res.RowsAffected > 0
		return nil
	})
	return unlocked, err
}

func (r *submissionRepository) GetTask(ctx context.Context, id uint) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *submissionRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}

// Delete removes the submission with its tasks, AI result and review.
func (r *submissionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("submission_id = ?", id).Delete(&models.AIResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("submission_id = ?", id).Delete(&models.Review{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Submission{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// VisibilityRepository stores per-student visibility overrides for chapters and subchapters.
type VisibilityRepository interface {
	GetChapter(ctx context.Context, chapterID, studentID uint) (models.ChapterVisibility, error)
	GetSubchapter(ctx context.Context, subchapterID, studentID uint) (models.SubchapterVisibility, error)
	ListForCourse(ctx context.Context, courseID, studentID uint) ([]models.ChapterVisibility, []models.SubchapterVisibility, error)
	SaveChapter(ctx context.Context, row *models.ChapterVisibility) error
	SaveSubchapter(ctx context.Context, row *models.SubchapterVisibility) error
	ListChaptersByPolicy(ctx context.Context, policy string) ([]models.ChapterVisibility, error)
	ListSubchaptersByPolicy(ctx context.Context, policy string) ([]models.SubchapterVisibility, error)
	Transaction(ctx context.Context, fn func(repo VisibilityRepository) error) error
}

type visibilityRepository struct {
	db *gorm.DB
}

// NewVisibilityRepository constructs the visibility repository.
func NewVisibilityRepository(db *gorm.DB) VisibilityRepository {
	return &visibilityRepository{db: db}
}

func (r *visibilityRepository) GetChapter(ctx context.Context, chapterID, studentID uint) (models.ChapterVisibility, error) {
	var row models.ChapterVisibility
	if err := r.db.WithContext(ctx).
		Where("chapter_id = ? AND student_id = ?", chapterID, studentID).
		First(&row).Error; err != nil {
		return models.ChapterVisibility{}, err
	}
	return row, nil
}

func (r *visibilityRepository) GetSubchapter(ctx context.Context, subchapterID, studentID uint) (models.SubchapterVisibility, error) {
	var row models.SubchapterVisibility
	if err := r.db.WithContext(ctx).
		Where("subchapter_id = ? AND student_id = ?", subchapterID, studentID).
		First(&row).Error; err != nil {
		return models.SubchapterVisibility{}, err
	}
	return row, nil
}

func (r *visibilityRepository) ListForCourse(ctx context.Context, courseID, studentID uint) ([]models.ChapterVisibility, []models.SubchapterVisibility, error) {
	var chapters []models.ChapterVisibility
	if err := r.db.WithContext(ctx).
		Select("chapter_visibilities.*").
		Joins("JOIN chapters ON chapters.id = chapter_visibilities.chapter_id").
		Where("chapters.course_id = ? AND chapter_visibilities.student_id = ?", courseID, studentID).
		Order("chapters.sort_order ASC").
		Find(&chapters).Error; err != nil {
		return nil, nil, err
	}

	var subchapters []models.SubchapterVisibility
	if err := r.db.WithContext(ctx).
		Select("subchapter_visibilities.*").
		Joins("JOIN subchapters ON subchapters.id = subchapter_visibilities.subchapter_id").
		Joins("JOIN chapters ON chapters.id = subchapters.chapter_id").
		Where("chapters.course_id = ? AND subchapter_visibilities.student_id = ?", courseID, studentID).
		Order("chapters.sort_order ASC, subchapters.sort_order ASC").
		Find(&subchapters).Error; err != nil {
		return nil, nil, err
	}

	return chapters, subchapters, nil
}

func (r *visibilityRepository) SaveChapter(ctx context.Context, row *models.ChapterVisibility) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(row).Error
}

func (r *visibilityRepository) SaveSubchapter(ctx context.Context, row *models.SubchapterVisibility) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(row).Error
}

// ListChaptersByPolicy returns visibility rows whose chapter uses policy, with the chapter preloaded.
func (r *visibilityRepository) ListChaptersByPolicy(ctx context.Context, policy string) ([]models.ChapterVisibility, error) {
	var rows []models.ChapterVisibility
	if err := r.db.WithContext(ctx).
		Select("chapter_visibilities.*").
		Joins("JOIN chapters ON chapters.id = chapter_visibilities.chapter_id").
		Where("chapters.visibility_policy = ?", policy).
		Preload("Chapter").
		Order("chapter_visibilities.id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListSubchaptersByPolicy returns visibility rows whose subchapter uses policy, with the subchapter preloaded.
func (r *visibilityRepository) ListSubchaptersByPolicy(ctx context.Context, policy string) ([]models.SubchapterVisibility, error) {
	var rows []models.SubchapterVisibility
	if err := r.db.WithContext(ctx).
		Select("subchapter_visibilities.*").
		Joins("JOIN subchapters ON subchapters.id = subchapter_visibilities.subchapter_id").
		Where("subchapters.visibility_policy = ?", policy).
		Preload("Subchapter").
		Order("subchapter_visibilities.id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Transaction runs fn against a repository bound to a single database transaction.
func (r *visibilityRepository) Transaction(ctx context.Context, fn func(repo VisibilityRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&visibilityRepository{db: tx})
	})
}

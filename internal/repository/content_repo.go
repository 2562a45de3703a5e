package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// ContentRepository reads the course → chapter → subchapter → material hierarchy.
type ContentRepository interface {
	GetCourse(ctx context.Context, id uint) (models.Course, error)
	ListChapters(ctx context.Context, courseID uint) ([]models.Chapter, error)
	ListSubchapters(ctx context.Context, courseID uint) ([]models.Subchapter, error)
	GetSubchapter(ctx context.Context, id uint) (models.Subchapter, error)
	NextSubchapter(ctx context.Context, current models.Subchapter) (models.Subchapter, error)
	ListMaterials(ctx context.Context, subchapterID uint) ([]models.Material, error)
	ListCourseMaterials(ctx context.Context, courseID uint) ([]models.Material, error)
}

type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository constructs the content repository.
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) GetCourse(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Preload("AIPromptTemplate").First(&course, id).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *contentRepository) ListChapters(ctx context.Context, courseID uint) ([]models.Chapter, error) {
	var chapters []models.Chapter
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("sort_order ASC, id ASC").
		Find(&chapters).Error; err != nil {
		return nil, err
	}
	return chapters, nil
}

// ListSubchapters returns every subchapter of the course ordered by chapter, then by its own order.
func (r *contentRepository) ListSubchapters(ctx context.Context, courseID uint) ([]models.Subchapter, error) {
	var subchapters []models.Subchapter
	if err := r.db.WithContext(ctx).
		Select("subchapters.*").
		Joins("JOIN chapters ON chapters.id = subchapters.chapter_id").
		Where("chapters.course_id = ?", courseID).
		Order("chapters.sort_order ASC, subchapters.sort_order ASC, subchapters.id ASC").
		Find(&subchapters).Error; err != nil {
		return nil, err
	}
	return subchapters, nil
}

func (r *contentRepository) GetSubchapter(ctx context.Context, id uint) (models.Subchapter, error) {
	var subchapter models.Subchapter
	if err := r.db.WithContext(ctx).
		Preload("Chapter.Course.AIPromptTemplate").
		First(&subchapter, id).Error; err != nil {
		return models.Subchapter{}, err
	}
	return subchapter, nil
}

// NextSubchapter finds the sibling that follows current inside the same chapter.
func (r *contentRepository) NextSubchapter(ctx context.Context, current models.Subchapter) (models.Subchapter, error) {
	var next models.Subchapter
	if err := r.db.WithContext(ctx).
		Where("chapter_id = ? AND sort_order > ?", current.ChapterID, current.Order).
		Order("sort_order ASC, id ASC").
		First(&next).Error; err != nil {
		return models.Subchapter{}, err
	}
	return next, nil
}

func (r *contentRepository) ListMaterials(ctx context.Context, subchapterID uint) ([]models.Material, error) {
	var materials []models.Material
	if err := r.db.WithContext(ctx).
		Where("subchapter_id = ?", subchapterID).
		Order("sort_order ASC, id ASC").
		Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

// ListCourseMaterials returns the materials of every subchapter in the course ordered by material order.
func (r *contentRepository) ListCourseMaterials(ctx context.Context, courseID uint) ([]models.Material, error) {
	var materials []models.Material
	if err := r.db.WithContext(ctx).
		Select("materials.*").
		Joins("JOIN subchapters ON subchapters.id = materials.subchapter_id").
		Joins("JOIN chapters ON chapters.id = subchapters.chapter_id").
		Where("chapters.course_id = ?", courseID).
		Order("materials.sort_order ASC, materials.id ASC").
		Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

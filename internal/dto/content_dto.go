package dto

import (
	"time"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// EnrollmentResponse is returned after a student joins a course.
type EnrollmentResponse struct {
	ID                 uint      `json:"id"`
	StudentID          uint      `json:"student_id"`
	CourseID           uint      `json:"course_id"`
	EnrolledAt         time.Time `json:"enrolled_at"`
	VisibleChapters    int       `json:"visible_chapters"`
	VisibleSubchapters int       `json:"visible_subchapters"`
}

// CourseLite summarises a course.
type CourseLite struct {
	ID        uint   `json:"id"`
	Title     string `json:"title"`
	TeacherID uint   `json:"teacher_id"`
}

// CourseContentResponse is the student's view of a course.
type CourseContentResponse struct {
	Course   CourseLite       `json:"course"`
	Chapters []ChapterContent `json:"chapters"`
}

// ChapterContent describes a chapter together with the student's visibility.
type ChapterContent struct {
	ID          uint                `json:"id"`
	Title       string              `json:"title"`
	Order       int                 `json:"order"`
	IsVisible   bool                `json:"is_visible"`
	UnlockedAt  *time.Time          `json:"unlocked_at"`
	Subchapters []SubchapterContent `json:"subchapters"`
}

// SubchapterContent describes a subchapter. Materials are only filled for visible subchapters.
type SubchapterContent struct {
	ID               uint               `json:"id"`
	Title            string             `json:"title"`
	Order            int                `json:"order"`
	IsVisible        bool               `json:"is_visible"`
	CanSubmit        bool               `json:"can_submit"`
	AllowSubmissions bool               `json:"allow_submissions"`
	UnlockedAt       *time.Time         `json:"unlocked_at"`
	Materials        []MaterialResponse `json:"materials,omitempty"`
}

// MaterialResponse serialises reference material.
type MaterialResponse struct {
	ID      uint   `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// NewCourseLite converts a course model.
func NewCourseLite(course models.Course) CourseLite {
	return CourseLite{ID: course.ID, Title: course.Title, TeacherID: course.TeacherID}
}

// NewMaterialResponses converts material models.
func NewMaterialResponses(materials []models.Material) []MaterialResponse {
	responses := make([]MaterialResponse, 0, len(materials))
	for _, material := range materials {
		responses = append(responses, MaterialResponse{
			ID:      material.ID,
			Title:   material.Title,
			Content: material.Content,
			Order:   material.Order,
		})
	}
	return responses
}

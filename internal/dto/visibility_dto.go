package dto

import (
	"time"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// Visibility target kinds accepted in a batch update.
const (
	VisibilityTargetChapter    = "chapter"
	VisibilityTargetSubchapter = "subchapter"
)

// VisibilityChange is one partial override. Omitted flags are left unchanged.
type VisibilityChange struct {
	TargetType string `json:"target_type" validate:"required,oneof=chapter subchapter"`
	TargetID   uint   `json:"target_id" validate:"required,gt=0"`
	IsVisible  *bool  `json:"is_visible"`
	CanSubmit  *bool  `json:"can_submit"`
}

// VisibilityUpdateRequest is the teacher's batch of overrides for one student.
type VisibilityUpdateRequest struct {
	Changes []VisibilityChange `json:"changes" validate:"required,min=1,max=500,dive"`
}

// VisibilityUpdateResponse reports how many changes were applied.
type VisibilityUpdateResponse struct {
	Applied int `json:"applied"`
}

// ChapterVisibilityResponse serialises a chapter visibility row.
type ChapterVisibilityResponse struct {
	ChapterID  uint       `json:"chapter_id"`
	IsVisible  bool       `json:"is_visible"`
	UnlockedAt *time.Time `json:"unlocked_at"`
}

// SubchapterVisibilityResponse serialises a subchapter visibility row.
type SubchapterVisibilityResponse struct {
	SubchapterID uint       `json:"subchapter_id"`
	IsVisible    bool       `json:"is_visible"`
	CanSubmit    bool       `json:"can_submit"`
	UnlockedAt   *time.Time `json:"unlocked_at"`
}

// VisibilityStateResponse lists every visibility row of a student in a course.
type VisibilityStateResponse struct {
	StudentID   uint                           `json:"student_id"`
	CourseID    uint                           `json:"course_id"`
	Chapters    []ChapterVisibilityResponse    `json:"chapters"`
	Subchapters []SubchapterVisibilityResponse `json:"subchapters"`
}

// NewVisibilityStateResponse converts visibility rows.
func NewVisibilityStateResponse(studentID, courseID uint, chapters []models.ChapterVisibility, subchapters []models.SubchapterVisibility) VisibilityStateResponse {
	response := VisibilityStateResponse{
		StudentID:   studentID,
		CourseID:    courseID,
		Chapters:    make([]ChapterVisibilityResponse, 0, len(chapters)),
		Subchapters: make([]SubchapterVisibilityResponse, 0, len(subchapters)),
	}
	for _, row := range chapters {
		response.Chapters = append(response.Chapters, ChapterVisibilityResponse{
			ChapterID:  row.ChapterID,
			IsVisible:  row.IsVisible,
			UnlockedAt: row.UnlockedAt,
		})
	}
	for _, row := range subchapters {
		response.Subchapters = append(response.Subchapters, SubchapterVisibilityResponse{
			SubchapterID: row.SubchapterID,
			IsVisible:    row.IsVisible,
			CanSubmit:    row.CanSubmit,
			UnlockedAt:   row.UnlockedAt,
		})
	}
	return response
}

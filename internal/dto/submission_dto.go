package dto

import (
	"time"

	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/pkg/document"
)

// Upload modes accepted by the submit endpoint.
const (
	UploadModePDF    = "pdf"
	UploadModeImages = "images"
)

// Review decisions accepted by the review endpoint.
const (
	ReviewDecisionDraft   = "draft"
	ReviewDecisionApprove = "approve"
	ReviewDecisionReject  = "reject"
)

// SubmitRequest carries an upload after the handler has read the multipart form.
type SubmitRequest struct {
	StudentID    uint            `validate:"required,gt=0"`
	SubchapterID uint            `validate:"required,gt=0"`
	Mode         string          `validate:"required"`
	File         *document.Part  `validate:"-"`
	Images       []document.Part `validate:"-"`
}

// SubmissionListFilter describes query string filters for listing submissions.
type SubmissionListFilter struct {
	Status       *string `query:"status" validate:"omitempty,oneof=pending ai_checked teacher_reviewing approved rejected"`
	SubchapterID *uint   `query:"subchapter_id"`
	StudentID    *uint   `query:"student_id"`
}

// ReviewRequest is the teacher's decision on a submission.
type ReviewRequest struct {
	Decision string `json:"decision" validate:"required"`
	Comment  string `json:"comment" validate:"max=5000"`
}

// TaskUpdateRequest edits a single AI-graded task.
type TaskUpdateRequest struct {
	PointsEarned   *float64 `json:"points_earned" validate:"omitempty,gte=0"`
	TeacherComment *string  `json:"teacher_comment" validate:"omitempty,max=5000"`
}

// TaskResponse serialises a graded task.
type TaskResponse struct {
	ID             uint    `json:"id"`
	TaskNumber     int     `json:"task_number"`
	PointsEarned   float64 `json:"points_earned"`
	MaxPoints      float64 `json:"max_points"`
	Comment        string  `json:"comment"`
	TeacherComment *string `json:"teacher_comment"`
	TeacherEdited  bool    `json:"teacher_edited"`
}

// ReviewResponse serialises the teacher's final review.
type ReviewResponse struct {
	TeacherID      uint      `json:"teacher_id"`
	Approved       bool      `json:"approved"`
	GeneralComment string    `json:"general_comment"`
	ReviewedAt     time.Time `json:"reviewed_at"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID           uint            `json:"id"`
	StudentID    uint            `json:"student_id"`
	SubchapterID uint            `json:"subchapter_id"`
	FileName     string          `json:"file_name"`
	FileSize     int64           `json:"file_size"`
	Status       string          `json:"status"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	TotalPoints  float64         `json:"total_points"`
	MaxPoints    float64         `json:"max_points"`
	AIProvider   string          `json:"ai_provider,omitempty"`
	Tasks        []TaskResponse  `json:"tasks"`
	Review       *ReviewResponse `json:"review,omitempty"`
}

// NewTaskResponse converts a task model.
func NewTaskResponse(task models.Task) TaskResponse {
	return TaskResponse{
		ID:             task.ID,
		TaskNumber:     task.TaskNumber,
		PointsEarned:   task.PointsEarned,
		MaxPoints:      task.MaxPoints,
		Comment:        task.Comment,
		TeacherComment: task.TeacherComment,
		TeacherEdited:  task.TeacherEdited,
	}
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		StudentID:    model.StudentID,
		SubchapterID: model.SubchapterID,
		FileName:     model.FileName,
		FileSize:     model.FileSize,
		Status:       model.Status,
		SubmittedAt:  model.SubmittedAt,
		Tasks:        make([]TaskResponse, 0, len(model.Tasks)),
	}

	for _, task := range model.Tasks {
		response.Tasks = append(response.Tasks, NewTaskResponse(task))
		response.TotalPoints += task.PointsEarned
		response.MaxPoints += task.MaxPoints
	}

	if model.AIResult != nil {
		response.AIProvider = model.AIResult.Provider
	}

	if model.Review != nil {
		response.Review = &ReviewResponse{
			TeacherID:      model.Review.TeacherID,
			Approved:       model.Review.Approved,
			GeneralComment: model.Review.GeneralComment,
			ReviewedAt:     model.Review.ReviewedAt,
		}
	}

	return response
}

// NewSubmissionResponseSlice converts a slice of submissions.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewSubmissionResponse(item))
	}
	return responses
}

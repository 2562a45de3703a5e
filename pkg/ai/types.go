package ai

import "context"

// GradeInput identifies the stored homework and the instructions to grade it with.
type GradeInput struct {
	SubmissionID uint
	FilePath     string
	Prompt       string
}

// TaskResult is the grader's verdict on a single exercise.
type TaskResult struct {
	TaskNumber   int     `json:"task_number" validate:"required,gte=1"`
	PointsEarned float64 `json:"points_earned" validate:"gte=0,ltefield=MaxPoints"`
	MaxPoints    float64 `json:"max_points" validate:"gt=0"`
	Comment      string  `json:"comment"`
}

// GradeResult bundles the parsed tasks with the untouched response text.
type GradeResult struct {
	Tasks       []TaskResult `json:"tasks" validate:"required,min=1,dive"`
	RawResponse string       `json:"-"`
	Provider    string       `json:"-"`
}

// Grader grades a stored homework document.
type Grader interface {
	Grade(ctx context.Context, input GradeInput) (GradeResult, error)
}

// FileReader loads stored documents by their storage path.
type FileReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

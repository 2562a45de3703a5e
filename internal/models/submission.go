package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// SubmissionStatusPending indicates the file is stored and awaits AI or teacher grading.
	SubmissionStatusPending = "pending"
	// SubmissionStatusAIChecked indicates the AI grader produced tasks for the submission.
	SubmissionStatusAIChecked = "ai_checked"
	// SubmissionStatusTeacherReviewing indicates a teacher opened the submission for review.
	SubmissionStatusTeacherReviewing = "teacher_reviewing"
	// SubmissionStatusApproved is terminal: the teacher accepted the work.
	SubmissionStatusApproved = "approved"
	// SubmissionStatusRejected is terminal: the teacher rejected the work.
	SubmissionStatusRejected = "rejected"
)

// Submission represents a homework PDF handed in by a student for a subchapter.
type Submission struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StudentID    uint       `gorm:"not null;index" json:"student_id"`
	SubchapterID uint       `gorm:"not null;index" json:"subchapter_id"`
	FilePath     string     `gorm:"size:512;not null" json:"file_path"`
	FileName     string     `gorm:"size:255;not null" json:"file_name"`
	FileSize     int64      `gorm:"not null" json:"file_size"`
	Status       string     `gorm:"size:32;not null;index" json:"status"`
	SubmittedAt  time.Time  `gorm:"not null" json:"submitted_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Subchapter   Subchapter `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student      User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Tasks        []Task     `gorm:"constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
	AIResult     *AIResult  `gorm:"constraint:OnDelete:CASCADE" json:"ai_result,omitempty"`
	Review       *Review    `gorm:"constraint:OnDelete:CASCADE" json:"review,omitempty"`
}

// IsTerminal reports whether grading has finished for the submission.
func (s Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusApproved || s.Status == SubmissionStatusRejected
}

// Task is a single graded exercise inside a submission.
type Task struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubmissionID   uint      `gorm:"not null;index" json:"submission_id"`
	TaskNumber     int       `gorm:"not null" json:"task_number"`
	PointsEarned   float64   `gorm:"not null" json:"points_earned"`
	MaxPoints      float64   `gorm:"not null" json:"max_points"`
	Comment        string    `gorm:"type:text" json:"comment"`
	TeacherComment *string   `gorm:"type:text" json:"teacher_comment"`
	TeacherEdited  bool      `gorm:"not null;default:false" json:"teacher_edited"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AIResult keeps the raw grader response for auditing.
type AIResult struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SubmissionID uint           `gorm:"not null;uniqueIndex" json:"submission_id"`
	RawResponse  string         `gorm:"type:text;not null" json:"raw_response"`
	Parsed       datatypes.JSON `json:"parsed"`
	Provider     string         `gorm:"size:32" json:"provider"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Review is the teacher's final decision on a submission.
type Review struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubmissionID   uint      `gorm:"not null;uniqueIndex" json:"submission_id"`
	TeacherID      uint      `gorm:"not null" json:"teacher_id"`
	Approved       bool      `gorm:"not null" json:"approved"`
	GeneralComment string    `gorm:"type:text" json:"general_comment"`
	ReviewedAt     time.Time `gorm:"not null" json:"reviewed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

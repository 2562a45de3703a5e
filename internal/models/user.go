package models

import "time"

const (
	// RoleStudent identifies learners who enrol and submit homework.
	RoleStudent = "student"
	// RoleTeacher identifies course owners who review submissions.
	RoleTeacher = "teacher"
)

// User represents an authenticated account of either role.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"size:32;not null;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

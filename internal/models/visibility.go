package models

import "time"

// ChapterVisibility is the per-student visibility state of a chapter.
type ChapterVisibility struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ChapterID  uint       `gorm:"not null;uniqueIndex:idx_chapter_visibility_student" json:"chapter_id"`
	StudentID  uint       `gorm:"not null;uniqueIndex:idx_chapter_visibility_student;index" json:"student_id"`
	IsVisible  bool       `gorm:"not null;default:false" json:"is_visible"`
	UnlockedAt *time.Time `json:"unlocked_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Chapter    Chapter    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// SetVisible flips the flag and keeps unlocked_at in step with it.
func (v *ChapterVisibility) SetVisible(visible bool, now time.Time) {
	v.UnlockedAt = nextUnlockedAt(v.IsVisible, visible, v.UnlockedAt, now)
	v.IsVisible = visible
}

// SubchapterVisibility is the per-student visibility and submission state of a subchapter.
type SubchapterVisibility struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubchapterID uint       `gorm:"not null;uniqueIndex:idx_subchapter_visibility_student" json:"subchapter_id"`
	StudentID    uint       `gorm:"not null;uniqueIndex:idx_subchapter_visibility_student;index" json:"student_id"`
	IsVisible    bool       `gorm:"not null;default:false" json:"is_visible"`
	CanSubmit    bool       `gorm:"not null;default:false" json:"can_submit"`
	UnlockedAt   *time.Time `json:"unlocked_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Subchapter   Subchapter `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// SetVisible flips the flag and keeps unlocked_at in step with it.
func (v *SubchapterVisibility) SetVisible(visible bool, now time.Time) {
	v.UnlockedAt = nextUnlockedAt(v.IsVisible, visible, v.UnlockedAt, now)
	v.IsVisible = visible
}

func nextUnlockedAt(current, next bool, unlockedAt *time.Time, now time.Time) *time.Time {
	switch {
	case next && !current:
		stamp := now
		return &stamp
	case !next:
		return nil
	default:
		return unlockedAt
	}
}

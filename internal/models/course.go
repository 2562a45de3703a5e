package models

import "time"

const (
	// VisibilityManual keeps content hidden until a teacher unlocks it.
	VisibilityManual = "manual"
	// VisibilityDateBased opens content inside a visible_from/visible_until window.
	VisibilityDateBased = "date_based"
	// VisibilityProgressBased opens the first sibling immediately and the rest on completion.
	VisibilityProgressBased = "progress_based"
)

// AIPromptTemplate is the grading instruction sent to the AI grader for a course.
type AIPromptTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps gorm from splitting the AI initialism.
func (AIPromptTemplate) TableName() string {
	return "ai_prompt_templates"
}

// Course is the root of the content hierarchy and is owned by one teacher.
type Course struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	Title              string            `gorm:"size:255;not null" json:"title"`
	TeacherID          uint              `gorm:"not null;index" json:"teacher_id"`
	AIPromptTemplateID *uint             `gorm:"column:ai_prompt_template_id" json:"ai_prompt_template_id"`
	AIPromptTemplate   *AIPromptTemplate `gorm:"constraint:OnDelete:SET NULL" json:"ai_prompt_template,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// PromptText returns the configured grading prompt, or an empty string when none is attached.
func (c Course) PromptText() string {
	if c.AIPromptTemplate == nil {
		return ""
	}
	return c.AIPromptTemplate.Content
}

// Chapter groups subchapters inside a course.
type Chapter struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	CourseID         uint       `gorm:"not null;index" json:"course_id"`
	Title            string     `gorm:"size:255;not null" json:"title"`
	Order            int        `gorm:"column:sort_order;not null" json:"order"`
	VisibilityPolicy string     `gorm:"size:32;not null;default:manual" json:"visibility_policy"`
	VisibleFrom      *time.Time `json:"visible_from"`
	VisibleUntil     *time.Time `json:"visible_until"`
	RequiresPrevious bool       `gorm:"not null;default:false" json:"requires_previous"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Course           Course     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Node exposes the chapter as a visibility rule input.
func (c Chapter) Node() ContentNode {
	return ContentNode{
		Order:            c.Order,
		Policy:           c.VisibilityPolicy,
		VisibleFrom:      c.VisibleFrom,
		VisibleUntil:     c.VisibleUntil,
		RequiresPrevious: c.RequiresPrevious,
	}
}

// Subchapter is the unit students submit homework against.
type Subchapter struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ChapterID        uint       `gorm:"not null;index" json:"chapter_id"`
	Title            string     `gorm:"size:255;not null" json:"title"`
	Order            int        `gorm:"column:sort_order;not null" json:"order"`
	VisibilityPolicy string     `gorm:"size:32;not null;default:manual" json:"visibility_policy"`
	VisibleFrom      *time.Time `json:"visible_from"`
	VisibleUntil     *time.Time `json:"visible_until"`
	RequiresPrevious bool       `gorm:"not null;default:false" json:"requires_previous"`
	AllowSubmissions bool       `gorm:"not null;default:false" json:"allow_submissions"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Chapter          Chapter    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Node exposes the subchapter as a visibility rule input.
func (s Subchapter) Node() ContentNode {
	return ContentNode{
		Order:            s.Order,
		Policy:           s.VisibilityPolicy,
		VisibleFrom:      s.VisibleFrom,
		VisibleUntil:     s.VisibleUntil,
		RequiresPrevious: s.RequiresPrevious,
	}
}

// Material is teacher-provided reference content attached to a subchapter.
type Material struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubchapterID uint       `gorm:"not null;index" json:"subchapter_id"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	Content      string     `gorm:"type:text" json:"content"`
	FilePath     string     `gorm:"size:512" json:"file_path"`
	Order        int        `gorm:"column:sort_order;not null" json:"order"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Subchapter   Subchapter `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// ContentNode is the policy-relevant projection of a chapter or subchapter.
type ContentNode struct {
	Order            int
	Policy           string
	VisibleFrom      *time.Time
	VisibleUntil     *time.Time
	RequiresPrevious bool
}

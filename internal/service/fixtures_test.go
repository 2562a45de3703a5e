package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/database"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/pkg/ai"
	"github.com/noah-isme/gema-classroom-api/pkg/document"
	"github.com/noah-isme/gema-classroom-api/pkg/storage"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s_%d?mode=memory&cache=shared", name, testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

type classroom struct {
	db          *gorm.DB
	teacher     models.User
	student     models.User
	course      models.Course
	chapter     models.Chapter
	subchapters []models.Subchapter

	content     repository.ContentRepository
	enrollments repository.EnrollmentRepository
	visibility  repository.VisibilityRepository
	submissions repository.SubmissionRepository
	activity    ActivityRecorder
}

// newClassroom seeds one progress based chapter with two progress based subchapters that accept submissions.
func newClassroom(t *testing.T) *classroom {
	t.Helper()
	db := newTestDB(t)

	teacher := models.User{Name: "Teacher", Email: "teacher@example.com", Role: models.RoleTeacher}
	student := models.User{Name: "Student", Email: "student@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&teacher).Error)
	require.NoError(t, db.Create(&student).Error)

	template := models.AIPromptTemplate{Name: "default", Content: "Grade every task out of its max points."}
	require.NoError(t, db.Create(&template).Error)

	course := models.Course{Title: "Algebra", TeacherID: teacher.ID, AIPromptTemplateID: &template.ID}
	require.NoError(t, db.Create(&course).Error)

	chapter := models.Chapter{CourseID: course.ID, Title: "Equations", Order: 1, VisibilityPolicy: models.VisibilityProgressBased}
	require.NoError(t, db.Create(&chapter).Error)

	subchapters := []models.Subchapter{
		{ChapterID: chapter.ID, Title: "Linear", Order: 1, VisibilityPolicy: models.VisibilityProgressBased, AllowSubmissions: true},
		{ChapterID: chapter.ID, Title: "Quadratic", Order: 2, VisibilityPolicy: models.VisibilityProgressBased, AllowSubmissions: true},
	}
	require.NoError(t, db.Create(&subchapters).Error)

	return &classroom{
		db:          db,
		teacher:     teacher,
		student:     student,
		course:      course,
		chapter:     chapter,
		subchapters: subchapters,
		content:     repository.NewContentRepository(db),
		enrollments: repository.NewEnrollmentRepository(db),
		visibility:  repository.NewVisibilityRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		activity:    NewActivityRecorder(repository.NewActivityLogRepository(db), zerolog.Nop()),
	}
}

func (c *classroom) enroll(t *testing.T) {
	t.Helper()
	svc := NewEnrollmentService(c.content, c.enrollments, c.visibility, zerolog.Nop())
	_, err := svc.Enroll(context.Background(), c.student.ID, c.course.ID)
	require.NoError(t, err)
}

func (c *classroom) subchapterState(t *testing.T, subchapterID uint) models.SubchapterVisibility {
	t.Helper()
	row, err := c.visibility.GetSubchapter(context.Background(), subchapterID, c.student.ID)
	require.NoError(t, err)
	return row
}

func (c *classroom) submission(t *testing.T, status string) models.Submission {
	t.Helper()
	submission := models.Submission{
		StudentID:    c.student.ID,
		SubchapterID: c.subchapters[0].ID,
		FilePath:     "submissions/1_homework.pdf",
		FileName:     "1_homework.pdf",
		FileSize:     10,
		Status:       status,
	}
	require.NoError(t, c.db.Create(&submission).Error)
	return submission
}

func pngPart(t *testing.T, name string) document.Part {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 48))
	for x := 0; x < 32; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return document.Part{Name: name, Data: buf.Bytes()}
}

func pngParts(t *testing.T, count int) []document.Part {
	t.Helper()
	parts := make([]document.Part, 0, count)
	for i := 0; i < count; i++ {
		parts = append(parts, pngPart(t, fmt.Sprintf("page-%d.png", i+1)))
	}
	return parts
}

func newTestStore(t *testing.T) *storage.Local {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return store
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []GradingJob
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job GradingJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) Jobs() []GradingJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]GradingJob(nil), d.jobs...)
}

type fakeGrader struct {
	mu     sync.Mutex
	calls  []ai.GradeInput
	result ai.GradeResult
	err    error
}

func (g *fakeGrader) Grade(_ context.Context, input ai.GradeInput) (ai.GradeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, input)
	return g.result, g.err
}

func (g *fakeGrader) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, event string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func newValidator() *validator.Validate {
	return validator.New()
}

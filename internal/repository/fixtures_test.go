package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/database"
	"github.com/noah-isme/gema-classroom-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

type courseFixture struct {
	Teacher     models.User
	Student     models.User
	Course      models.Course
	Chapter     models.Chapter
	Subchapters []models.Subchapter
}

func seedCourse(t *testing.T, db *gorm.DB) courseFixture {
	t.Helper()
	teacher := models.User{Name: "Teacher", Email: "teacher@example.com", Role: models.RoleTeacher}
	student := models.User{Name: "Student", Email: "student@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&teacher).Error)
	require.NoError(t, db.Create(&student).Error)

	course := models.Course{Title: "Algebra", TeacherID: teacher.ID}
	require.NoError(t, db.Create(&course).Error)

	chapter := models.Chapter{CourseID: course.ID, Title: "Equations", Order: 1, VisibilityPolicy: models.VisibilityProgressBased}
	require.NoError(t, db.Create(&chapter).Error)

	subchapters := []models.Subchapter{
		{ChapterID: chapter.ID, Title: "Linear", Order: 1, VisibilityPolicy: models.VisibilityProgressBased, AllowSubmissions: true},
		{ChapterID: chapter.ID, Title: "Quadratic", Order: 2, VisibilityPolicy: models.VisibilityProgressBased, AllowSubmissions: true},
	}
	require.NoError(t, db.Create(&subchapters).Error)

	return courseFixture{Teacher: teacher, Student: student, Course: course, Chapter: chapter, Subchapters: subchapters}
}

func seedSubmission(t *testing.T, db *gorm.DB, fx courseFixture, status string) models.Submission {
	t.Helper()
	submission := models.Submission{
		StudentID:    fx.Student.ID,
		SubchapterID: fx.Subchapters[0].ID,
		FilePath:     "submissions/1_homework.pdf",
		FileName:     "1_homework.pdf",
		FileSize:     1024,
		Status:       status,
		SubmittedAt:  time.Now(),
	}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

package services

import (
	"path/filepath"
	"testing"
	"time"

	"coursequiz/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openSQLite returns a GORM handle on a fresh file-backed SQLite database
// holding every table except answers, whose bigint[] column is Postgres
// only.
func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "coursequiz.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Quiz{},
		&models.Question{},
		&models.Option{},
		&models.Attempt{},
	))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// newTestCache returns a quiz cache backed by an in-process Redis.
func newTestCache(t *testing.T) (*QuizCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQuizCache(client, 5*time.Minute), mr
}

func createInstructor(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: "Instructor", PasswordHash: "x", Role: models.RoleInstructor}
	require.NoError(t, db.Create(user).Error)
	return user
}

func quizRequest() *CreateQuizRequest {
	return &CreateQuizRequest{
		CourseID:        3,
		Title:           "Loops",
		PassScore:       60,
		AttemptsAllowed: intPtr(2),
		TimeLimitS:      intPtr(600),
		Questions: []CreateQuestionRequest{
			{
				Text:     "Second",
				Points:   3,
				Position: 2,
				Options: []CreateOptionRequest{
					{Text: "b", Position: 2},
					{Text: "a", IsCorrect: true, Position: 1},
				},
			},
			{
				Text:     "First",
				Points:   1,
				Position: 1,
				Options: []CreateOptionRequest{
					{Text: "x", IsCorrect: true, Position: 1},
					{Text: "y", IsCorrect: true, Position: 2},
					{Text: "z", Position: 3},
				},
			},
		},
	}
}

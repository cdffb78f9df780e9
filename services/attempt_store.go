package services

import (
	"context"
	"errors"
	"time"

	"coursequiz/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttemptStore is the storage collaborator of the attempt and grading
// services. Quiz, question and option rows are read-only through it.
type AttemptStore interface {
	// GetQuizWithQuestionsAndOptions returns the quiz with questions and
	// options ordered by position, or nil when the quiz does not exist.
	GetQuizWithQuestionsAndOptions(ctx context.Context, quizID uint) (*models.Quiz, error)
	FindPendingAttempt(ctx context.Context, quizID, studentID uint) (*models.Attempt, error)
	HasPassedAttempt(ctx context.Context, quizID, studentID uint) (bool, error)
	CountAttempts(ctx context.Context, quizID, studentID uint) (int, error)
	CountPassedAttempts(ctx context.Context, quizID, studentID uint) (int, error)
	CreateAttempt(ctx context.Context, quizID, studentID uint, attemptNo int) (*models.Attempt, error)
	UpsertAnswer(ctx context.Context, attemptID, questionID uint, selectedOptionIDs []uint, isCorrect bool) error
	// DeleteAnswers removes every answer row of the attempt.
	DeleteAnswers(ctx context.Context, attemptID uint) error
	FinalizeAttempt(ctx context.Context, attemptID uint, score int, passed bool) error

	// GetAttempt returns the attempt with its answers, or nil when absent.
	GetAttempt(ctx context.Context, attemptID uint) (*models.Attempt, error)
	ListAttempts(ctx context.Context, quizID, studentID uint) ([]models.Attempt, error)

	// RunLocked runs fn in a single transaction serialized against every
	// other RunLocked call for the same (quiz, student) pair. Everything fn
	// writes through tx commits or rolls back together.
	RunLocked(ctx context.Context, quizID, studentID uint, fn func(tx AttemptStore) error) error
}

// GormAttemptStore implements AttemptStore on PostgreSQL through GORM.
type GormAttemptStore struct {
	db *gorm.DB
}

func NewGormAttemptStore(db *gorm.DB) *GormAttemptStore {
	return &GormAttemptStore{db: db}
}

// pendingAttemptIndex backs the one-pending-attempt invariant at the storage layer.
const pendingAttemptIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_pending
	ON attempts (quiz_id, student_id) WHERE submitted_at IS NULL`

// Migrate creates the partial unique index AutoMigrate cannot express.
func (s *GormAttemptStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec(pendingAttemptIndex).Error
}

func (s *GormAttemptStore) GetQuizWithQuestionsAndOptions(ctx context.Context, quizID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.position")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.position")
		}).
		First(&quiz, quizID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (s *GormAttemptStore) FindPendingAttempt(ctx context.Context, quizID, studentID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := s.db.WithContext(ctx).
		Where("quiz_id = ? AND student_id = ? AND submitted_at IS NULL", quizID, studentID).
		Order("attempt_no DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *GormAttemptStore) HasPassedAttempt(ctx context.Context, quizID, studentID uint) (bool, error) {
	var exists bool
	err := s.db.WithContext(ctx).
		Raw("SELECT EXISTS(SELECT 1 FROM attempts WHERE quiz_id = ? AND student_id = ? AND passed = TRUE)", quizID, studentID).
		Scan(&exists).Error
	return exists, err
}

func (s *GormAttemptStore) CountAttempts(ctx context.Context, quizID, studentID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Count(&count).Error
	return int(count), err
}

func (s *GormAttemptStore) CountPassedAttempts(ctx context.Context, quizID, studentID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("quiz_id = ? AND student_id = ? AND passed = TRUE", quizID, studentID).
		Count(&count).Error
	return int(count), err
}

func (s *GormAttemptStore) CreateAttempt(ctx context.Context, quizID, studentID uint, attemptNo int) (*models.Attempt, error) {
	attempt := models.Attempt{
		QuizID:    quizID,
		StudentID: studentID,
		AttemptNo: attemptNo,
		StartedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *GormAttemptStore) UpsertAnswer(ctx context.Context, attemptID, questionID uint, selectedOptionIDs []uint, isCorrect bool) error {
	selected := make(pq.Int64Array, 0, len(selectedOptionIDs))
	for _, id := range selectedOptionIDs {
		selected = append(selected, int64(id))
	}

	answer := models.Answer{
		AttemptID:         attemptID,
		QuestionID:        questionID,
		SelectedOptionIDs: selected,
		IsCorrect:         isCorrect,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"selected_option_ids", "is_correct", "updated_at"}),
	}).Create(&answer).Error
}

func (s *GormAttemptStore) DeleteAnswers(ctx context.Context, attemptID uint) error {
	return s.db.WithContext(ctx).Where("attempt_id = ?", attemptID).Delete(&models.Answer{}).Error
}

func (s *GormAttemptStore) FinalizeAttempt(ctx context.Context, attemptID uint, score int, passed bool) error {
	res := s.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"submitted_at": time.Now().UTC(),
			"score":        score,
			"passed":       passed,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound("attempt %d not found", attemptID)
	}
	return nil
}

func (s *GormAttemptStore) GetAttempt(ctx context.Context, attemptID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := s.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("answers.question_id")
		}).
		First(&attempt, attemptID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *GormAttemptStore) ListAttempts(ctx context.Context, quizID, studentID uint) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := s.db.WithContext(ctx).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Order("attempt_no").
		Find(&attempts).Error
	return attempts, err
}

func (s *GormAttemptStore) RunLocked(ctx context.Context, quizID, studentID uint, fn func(tx AttemptStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Two-key form; ids beyond int32 collide harmlessly by over-serializing.
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", int32(quizID), int32(studentID)).Error; err != nil {
			return err
		}
		return fn(&GormAttemptStore{db: tx})
	})
}

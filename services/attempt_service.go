package services

import (
	"context"
	"log/slog"

	"coursequiz/models"
)

// AttemptService creates and resumes quiz attempts.
type AttemptService struct {
	store AttemptStore
}

func NewAttemptService(store AttemptStore) *AttemptService {
	return &AttemptService{store: store}
}

// StartOrResumeAttempt returns the student's pending attempt for the quiz,
// or creates the next one. A student who has not passed yet may retry
// without limit; once passed, AttemptsAllowed caps the number of passed
// attempts before further retakes are refused.
func (s *AttemptService) StartOrResumeAttempt(ctx context.Context, quizID, studentID uint) (*models.Attempt, error) {
	attempt, _, err := s.StartAttempt(ctx, quizID, studentID)
	return attempt, err
}

// StartAttempt is StartOrResumeAttempt that also reports whether a new
// attempt was created.
func (s *AttemptService) StartAttempt(ctx context.Context, quizID, studentID uint) (*models.Attempt, bool, error) {
	quiz, err := s.store.GetQuizWithQuestionsAndOptions(ctx, quizID)
	if err != nil {
		return nil, false, fatal("failed to load quiz", err)
	}
	if quiz == nil {
		return nil, false, notFound("quiz %d not found", quizID)
	}

	var (
		attempt *models.Attempt
		created bool
	)
	err = s.store.RunLocked(ctx, quizID, studentID, func(tx AttemptStore) error {
		pending, err := tx.FindPendingAttempt(ctx, quizID, studentID)
		if err != nil {
			return fatal("failed to look up pending attempt", err)
		}
		if pending != nil {
			attempt = pending
			return nil
		}

		passed, err := tx.HasPassedAttempt(ctx, quizID, studentID)
		if err != nil {
			return fatal("failed to check passed attempts", err)
		}
		if passed && quiz.AttemptsAllowed != nil {
			passedCount, err := tx.CountPassedAttempts(ctx, quizID, studentID)
			if err != nil {
				return fatal("failed to count passed attempts", err)
			}
			if passedCount >= *quiz.AttemptsAllowed {
				return &Error{
					Kind:    KindAttemptLimitExceeded,
					Message: "you have already passed this quiz and used all allowed retakes",
				}
			}
		}

		prior, err := tx.CountAttempts(ctx, quizID, studentID)
		if err != nil {
			return fatal("failed to count attempts", err)
		}
		attempt, err = tx.CreateAttempt(ctx, quizID, studentID, prior+1)
		if err != nil {
			return fatal("failed to create attempt", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, wrapStoreErr(err)
	}

	if created {
		slog.Info("attempt started", "quiz_id", quizID, "student_id", studentID, "attempt_no", attempt.AttemptNo)
	} else {
		slog.Debug("attempt resumed", "quiz_id", quizID, "student_id", studentID, "attempt_id", attempt.ID)
	}
	return attempt, created, nil
}

// GetAttemptForStudent returns the attempt when it belongs to the quiz and
// the student.
func (s *AttemptService) GetAttemptForStudent(ctx context.Context, quizID, attemptID, studentID uint) (*models.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, fatal("failed to load attempt", err)
	}
	if attempt == nil || attempt.QuizID != quizID {
		return nil, notFound("attempt %d not found", attemptID)
	}
	if attempt.StudentID != studentID {
		return nil, forbidden("attempt %d belongs to another student", attemptID)
	}
	return attempt, nil
}

// GetQuizForStudent returns the quiz without its answer key.
func (s *AttemptService) GetQuizForStudent(ctx context.Context, quizID uint) (*StudentQuiz, error) {
	quiz, err := s.store.GetQuizWithQuestionsAndOptions(ctx, quizID)
	if err != nil {
		return nil, fatal("failed to load quiz", err)
	}
	if quiz == nil {
		return nil, notFound("quiz %d not found", quizID)
	}
	return NewStudentQuiz(quiz), nil
}

func (s *AttemptService) ListStudentAttempts(ctx context.Context, quizID, studentID uint) ([]models.Attempt, error) {
	quiz, err := s.store.GetQuizWithQuestionsAndOptions(ctx, quizID)
	if err != nil {
		return nil, fatal("failed to load quiz", err)
	}
	if quiz == nil {
		return nil, notFound("quiz %d not found", quizID)
	}

	attempts, err := s.store.ListAttempts(ctx, quizID, studentID)
	if err != nil {
		return nil, fatal("failed to list attempts", err)
	}
	return attempts, nil
}

// wrapStoreErr keeps kind-tagged errors and tags anything else as fatal.
func wrapStoreErr(err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	return fatal("storage failure", err)
}

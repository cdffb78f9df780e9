package services

import (
	"context"
	"log/slog"

	"coursequiz/models"
)

// SubmittedAnswer is one question's selection as sent by the student.
type SubmittedAnswer struct {
	QuestionID        uint   `json:"question_id" binding:"required"`
	SelectedOptionIDs []uint `json:"selected_option_ids"`
}

// GradeResult is the outcome of a submission. Score is earned raw points.
type GradeResult struct {
	AttemptID    uint `json:"attempt_id"`
	Score        int  `json:"score"`
	TotalPoints  int  `json:"total_points"`
	ScorePercent int  `json:"score_percent"`
	Passed       bool `json:"passed"`
	PassScore    int  `json:"pass_score"`
}

// GradingService scores submitted attempts against the quiz answer key.
type GradingService struct {
	store AttemptStore
}

func NewGradingService(store AttemptStore) *GradingService {
	return &GradingService{store: store}
}

// SubmitAttempt grades every question of the quiz and finalizes the attempt
// in one transaction. A question is correct only when the selection equals
// the set of correct options exactly. Submitting an already finalized
// attempt regrades it and replaces the previous answers and result.
func (s *GradingService) SubmitAttempt(ctx context.Context, quizID, attemptID uint, answers []SubmittedAnswer) (*GradeResult, error) {
	quiz, err := s.store.GetQuizWithQuestionsAndOptions(ctx, quizID)
	if err != nil {
		return nil, fatal("failed to load quiz", err)
	}
	if quiz == nil {
		return nil, notFound("quiz %d not found", quizID)
	}

	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, fatal("failed to load attempt", err)
	}
	if attempt == nil || attempt.QuizID != quizID {
		return nil, notFound("attempt %d not found", attemptID)
	}

	byQuestion := make(map[uint]SubmittedAnswer, len(answers))
	for _, answer := range answers {
		byQuestion[answer.QuestionID] = answer
	}

	result := &GradeResult{AttemptID: attemptID, PassScore: quiz.PassScore}
	err = s.store.RunLocked(ctx, quizID, attempt.StudentID, func(tx AttemptStore) error {
		if err := tx.DeleteAnswers(ctx, attemptID); err != nil {
			return fatal("failed to clear previous answers", err)
		}

		for i := range quiz.Questions {
			question := &quiz.Questions[i]
			result.TotalPoints += question.Points

			answer, ok := byQuestion[question.ID]
			if !ok {
				continue
			}

			correct := IsExactSelection(question, answer.SelectedOptionIDs)
			if correct {
				result.Score += question.Points
			}

			if err := tx.UpsertAnswer(ctx, attemptID, question.ID, answer.SelectedOptionIDs, correct); err != nil {
				return fatal("failed to save answer", err)
			}
		}

		result.ScorePercent = ScorePercent(result.Score, result.TotalPoints)
		result.Passed = result.ScorePercent >= quiz.PassScore

		if err := tx.FinalizeAttempt(ctx, attemptID, result.Score, result.Passed); err != nil {
			return fatal("failed to finalize attempt", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	slog.Info("attempt graded",
		"quiz_id", quizID,
		"attempt_id", attemptID,
		"score", result.Score,
		"total_points", result.TotalPoints,
		"score_percent", result.ScorePercent,
		"passed", result.Passed,
	)
	return result, nil
}

// IsExactSelection reports whether selected equals the question's correct
// option set. Duplicated ids in selected count once.
func IsExactSelection(question *models.Question, selected []uint) bool {
	correct := question.CorrectOptionIDs()

	chosen := make(map[uint]struct{}, len(selected))
	for _, id := range selected {
		chosen[id] = struct{}{}
	}

	if len(chosen) != len(correct) {
		return false
	}
	for id := range chosen {
		if _, ok := correct[id]; !ok {
			return false
		}
	}
	return true
}

// ScorePercent rounds earned/total*100 half up. A quiz without points
// scores 0.
func ScorePercent(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return (earned*200 + total) / (2 * total)
}

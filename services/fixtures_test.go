package services

import (
	"context"
	"errors"

	"coursequiz/models"
)

func intPtr(v int) *int { return &v }

type optionDef struct {
	id      uint
	correct bool
}

type questionDef struct {
	id      uint
	points  int
	options []optionDef
}

func buildQuiz(id uint, passScore int, attemptsAllowed *int, questions ...questionDef) *models.Quiz {
	quiz := &models.Quiz{
		ID:              id,
		CourseID:        1,
		Title:           "Quiz",
		InstructorID:    100,
		PassScore:       passScore,
		AttemptsAllowed: attemptsAllowed,
	}
	for i, qs := range questions {
		q := models.Question{ID: qs.id, QuizID: id, Text: "Q", Points: qs.points, Position: i + 1}
		for j, opt := range qs.options {
			q.Options = append(q.Options, models.Option{
				ID:         opt.id,
				QuestionID: qs.id,
				Text:       "O",
				IsCorrect:  opt.correct,
				Position:   j + 1,
			})
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz
}

// singleQuestionQuiz has one question (id 10) with options 11 (correct) and 12.
func singleQuestionQuiz(id uint, passScore int, attemptsAllowed *int) *models.Quiz {
	return buildQuiz(id, passScore, attemptsAllowed, questionDef{
		id:     10,
		points: 1,
		options: []optionDef{
			{id: 11, correct: true},
			{id: 12},
		},
	})
}

// failingStore injects errors into selected AttemptStore calls.
type failingStore struct {
	AttemptStore
	failQuiz     bool
	failFinalize bool
	failCreate   bool
}

var errStorage = errors.New("connection reset")

func (s *failingStore) GetQuizWithQuestionsAndOptions(ctx context.Context, quizID uint) (*models.Quiz, error) {
	if s.failQuiz {
		return nil, errStorage
	}
	return s.AttemptStore.GetQuizWithQuestionsAndOptions(ctx, quizID)
}

func (s *failingStore) RunLocked(ctx context.Context, quizID, studentID uint, fn func(tx AttemptStore) error) error {
	return s.AttemptStore.RunLocked(ctx, quizID, studentID, func(tx AttemptStore) error {
		return fn(&failingStore{
			AttemptStore: tx,
			failFinalize: s.failFinalize,
			failCreate:   s.failCreate,
		})
	})
}

func (s *failingStore) FinalizeAttempt(ctx context.Context, attemptID uint, score int, passed bool) error {
	if s.failFinalize {
		return errStorage
	}
	return s.AttemptStore.FinalizeAttempt(ctx, attemptID, score, passed)
}

func (s *failingStore) CreateAttempt(ctx context.Context, quizID, studentID uint, attemptNo int) (*models.Attempt, error) {
	if s.failCreate {
		return nil, errStorage
	}
	return s.AttemptStore.CreateAttempt(ctx, quizID, studentID, attemptNo)
}

package services

import (
	"context"
	"errors"
	"log/slog"

	"coursequiz/models"

	"gorm.io/gorm"
)

type QuizService struct {
	db    *gorm.DB
	cache *QuizCache
}

func NewQuizService(db *gorm.DB, cache *QuizCache) *QuizService {
	return &QuizService{db: db, cache: cache}
}

type CreateQuizRequest struct {
	CourseID        uint                    `json:"course_id" binding:"required"`
	LessonID        *uint                   `json:"lesson_id"`
	Title           string                  `json:"title" binding:"required"`
	Description     string                  `json:"description"`
	TimeLimitS      *int                    `json:"time_limit_s" binding:"omitempty,min=1"`
	AttemptsAllowed *int                    `json:"attempts_allowed" binding:"omitempty,min=1"`
	PassScore       int                     `json:"pass_score" binding:"min=0,max=100"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

type CreateQuestionRequest struct {
	Text     string                `json:"text" binding:"required"`
	Points   int                   `json:"points" binding:"required,min=1"`
	Position int                   `json:"position" binding:"required"`
	Options  []CreateOptionRequest `json:"options" binding:"required,min=2,max=8,dive"`
}

type CreateOptionRequest struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"is_correct"`
	Position  int    `json:"position" binding:"required"`
}

// UpdateQuizRequest changes quiz settings. Questions, when present,
// replace the whole question set. The Clear flags reset the time limit and
// the retake cap to unset.
type UpdateQuizRequest struct {
	Title                string                  `json:"title"`
	Description          string                  `json:"description"`
	TimeLimitS           *int                    `json:"time_limit_s" binding:"omitempty,min=1"`
	ClearTimeLimit       bool                    `json:"clear_time_limit"`
	AttemptsAllowed      *int                    `json:"attempts_allowed" binding:"omitempty,min=1"`
	ClearAttemptsAllowed bool                    `json:"clear_attempts_allowed"`
	PassScore            *int                    `json:"pass_score" binding:"omitempty,min=0,max=100"`
	Questions            []CreateQuestionRequest `json:"questions" binding:"omitempty,dive"`
}

// apply copies the requested settings onto quiz.
func (req *UpdateQuizRequest) apply(quiz *models.Quiz) error {
	if req.ClearTimeLimit && req.TimeLimitS != nil {
		return validation("time_limit_s and clear_time_limit are mutually exclusive")
	}
	if req.ClearAttemptsAllowed && req.AttemptsAllowed != nil {
		return validation("attempts_allowed and clear_attempts_allowed are mutually exclusive")
	}

	if req.Title != "" {
		quiz.Title = req.Title
	}
	if req.Description != "" {
		quiz.Description = req.Description
	}
	switch {
	case req.ClearTimeLimit:
		quiz.TimeLimitS = nil
	case req.TimeLimitS != nil:
		quiz.TimeLimitS = req.TimeLimitS
	}
	switch {
	case req.ClearAttemptsAllowed:
		quiz.AttemptsAllowed = nil
	case req.AttemptsAllowed != nil:
		quiz.AttemptsAllowed = req.AttemptsAllowed
	}
	if req.PassScore != nil {
		quiz.PassScore = *req.PassScore
	}
	return nil
}

func (s *QuizService) CreateQuiz(ctx context.Context, instructorID uint, req *CreateQuizRequest) (*models.Quiz, error) {
	if err := validateQuestions(req.Questions); err != nil {
		return nil, err
	}

	quiz := models.Quiz{
		CourseID:        req.CourseID,
		LessonID:        req.LessonID,
		Title:           req.Title,
		Description:     req.Description,
		InstructorID:    instructorID,
		TimeLimitS:      req.TimeLimitS,
		AttemptsAllowed: req.AttemptsAllowed,
		PassScore:       req.PassScore,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&quiz).Error; err != nil {
			return err
		}
		return createQuestions(tx, quiz.ID, req.Questions)
	})
	if err != nil {
		return nil, fatal("failed to create quiz", err)
	}

	slog.Info("quiz created", "quiz_id", quiz.ID, "instructor_id", instructorID, "questions", len(req.Questions))
	return s.GetQuizByID(ctx, quiz.ID, instructorID)
}

func (s *QuizService) GetInstructorQuizzes(ctx context.Context, instructorID uint) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	err := s.db.WithContext(ctx).Where("instructor_id = ?", instructorID).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.position")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.position")
		}).
		Order("created_at DESC").
		Find(&quizzes).Error
	if err != nil {
		return nil, fatal("failed to list quizzes", err)
	}
	return quizzes, nil
}

// GetQuizByID returns the full quiz, answer key included, to its owner.
func (s *QuizService) GetQuizByID(ctx context.Context, quizID uint, instructorID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.db.WithContext(ctx).Where("id = ? AND instructor_id = ?", quizID, instructorID).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.position")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.position")
		}).
		First(&quiz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("quiz %d not found", quizID)
	}
	if err != nil {
		return nil, fatal("failed to load quiz", err)
	}
	return &quiz, nil
}

// CheckOwnership fails unless the instructor owns the quiz.
func (s *QuizService) CheckOwnership(ctx context.Context, quizID uint, instructorID uint) error {
	var quiz models.Quiz
	err := s.db.WithContext(ctx).Select("id", "instructor_id").First(&quiz, quizID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("quiz %d not found", quizID)
	}
	if err != nil {
		return fatal("failed to load quiz", err)
	}
	if quiz.InstructorID != instructorID {
		return forbidden("quiz %d belongs to another instructor", quizID)
	}
	return nil
}

func (s *QuizService) UpdateQuiz(ctx context.Context, quizID uint, instructorID uint, req *UpdateQuizRequest) (*models.Quiz, error) {
	quiz, err := s.GetQuizByID(ctx, quizID, instructorID)
	if err != nil {
		return nil, err
	}
	if req.Questions != nil {
		if err := validateQuestions(req.Questions); err != nil {
			return nil, err
		}
	}

	if err := req.apply(quiz); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Questions").Save(quiz).Error; err != nil {
			return err
		}
		if req.Questions == nil {
			return nil
		}

		// The answer key is frozen once students have attempted the quiz.
		var attempts int64
		if err := tx.Model(&models.Attempt{}).Where("quiz_id = ?", quizID).Count(&attempts).Error; err != nil {
			return err
		}
		if attempts > 0 {
			return conflict("quiz %d already has attempts; questions cannot be replaced", quizID)
		}

		var questionIDs []uint
		if err := tx.Model(&models.Question{}).Where("quiz_id = ?", quizID).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Unscoped().Where("question_id IN ?", questionIDs).Delete(&models.Option{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("quiz_id = ?", quizID).Delete(&models.Question{}).Error; err != nil {
				return err
			}
		}
		return createQuestions(tx, quizID, req.Questions)
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	s.cache.Invalidate(ctx, quizID)
	slog.Info("quiz updated", "quiz_id", quizID, "instructor_id", instructorID)
	return s.GetQuizByID(ctx, quizID, instructorID)
}

func (s *QuizService) DeleteQuiz(ctx context.Context, quizID uint, instructorID uint) error {
	if _, err := s.GetQuizByID(ctx, quizID, instructorID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Quiz{}, quizID).Error; err != nil {
		return fatal("failed to delete quiz", err)
	}
	s.cache.Invalidate(ctx, quizID)
	slog.Info("quiz deleted", "quiz_id", quizID, "instructor_id", instructorID)
	return nil
}

// StudentQuiz is the quiz as shown to a student taking it: no answer key.
type StudentQuiz struct {
	ID              uint              `json:"id"`
	CourseID        uint              `json:"course_id"`
	LessonID        *uint             `json:"lesson_id,omitempty"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	TimeLimitS      *int              `json:"time_limit_s,omitempty"`
	AttemptsAllowed *int              `json:"attempts_allowed"`
	PassScore       int               `json:"pass_score"`
	TotalPoints     int               `json:"total_points"`
	Questions       []StudentQuestion `json:"questions"`
}

type StudentQuestion struct {
	ID       uint            `json:"id"`
	Text     string          `json:"text"`
	Points   int             `json:"points"`
	Position int             `json:"position"`
	Multi    bool            `json:"multi"` // more than one option is correct
	Options  []StudentOption `json:"options"`
}

type StudentOption struct {
	ID       uint   `json:"id"`
	Text     string `json:"text"`
	Position int    `json:"position"`
	// IsCorrect is intentionally omitted
}

// NewStudentQuiz strips correctness flags from a loaded quiz.
func NewStudentQuiz(quiz *models.Quiz) *StudentQuiz {
	view := &StudentQuiz{
		ID:              quiz.ID,
		CourseID:        quiz.CourseID,
		LessonID:        quiz.LessonID,
		Title:           quiz.Title,
		Description:     quiz.Description,
		TimeLimitS:      quiz.TimeLimitS,
		AttemptsAllowed: quiz.AttemptsAllowed,
		PassScore:       quiz.PassScore,
		TotalPoints:     quiz.TotalPoints(),
		Questions:       make([]StudentQuestion, len(quiz.Questions)),
	}
	for i, question := range quiz.Questions {
		sq := StudentQuestion{
			ID:       question.ID,
			Text:     question.Text,
			Points:   question.Points,
			Position: question.Position,
			Multi:    len(question.CorrectOptionIDs()) > 1,
			Options:  make([]StudentOption, len(question.Options)),
		}
		for j, option := range question.Options {
			sq.Options[j] = StudentOption{ID: option.ID, Text: option.Text, Position: option.Position}
		}
		view.Questions[i] = sq
	}
	return view
}

func validateQuestions(questions []CreateQuestionRequest) error {
	positions := make(map[int]struct{}, len(questions))
	for i, q := range questions {
		if _, dup := positions[q.Position]; dup {
			return validation("question %d: duplicate position %d", i, q.Position)
		}
		positions[q.Position] = struct{}{}

		if q.Points < 1 {
			return validation("question %d: points must be positive", i)
		}
		if len(q.Options) < 2 {
			return validation("question %d: at least two options required", i)
		}

		correctCount := 0
		optionPositions := make(map[int]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if opt.IsCorrect {
				correctCount++
			}
			if _, dup := optionPositions[opt.Position]; dup {
				return validation("question %d: duplicate option position %d", i, opt.Position)
			}
			optionPositions[opt.Position] = struct{}{}
		}
		if correctCount == 0 {
			return validation("question %d: at least one option must be correct", i)
		}
	}
	return nil
}

func createQuestions(tx *gorm.DB, quizID uint, questions []CreateQuestionRequest) error {
	for _, qReq := range questions {
		question := models.Question{
			QuizID:   quizID,
			Text:     qReq.Text,
			Points:   qReq.Points,
			Position: qReq.Position,
		}
		if err := tx.Create(&question).Error; err != nil {
			return err
		}

		for _, optReq := range qReq.Options {
			option := models.Option{
				QuestionID: question.ID,
				Text:       optReq.Text,
				IsCorrect:  optReq.IsCorrect,
				Position:   optReq.Position,
			}
			if err := tx.Create(&option).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

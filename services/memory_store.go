package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"coursequiz/models"

	"github.com/lib/pq"
)

var errDuplicatePending = errors.New("duplicate pending attempt for quiz and student")

// MemoryAttemptStore implements AttemptStore in memory. RunLocked holds a
// single store-wide lock and restores a snapshot when fn fails.
type MemoryAttemptStore struct {
	mu   sync.Mutex
	data *memData
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{data: newMemData()}
}

// PutQuiz stores the quiz, keeping the ids it carries.
func (s *MemoryAttemptStore) PutQuiz(quiz *models.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *quiz
	s.data.quizzes[quiz.ID] = &stored
}

func (s *MemoryAttemptStore) GetQuizWithQuestionsAndOptions(ctx context.Context, quizID uint) (*models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetQuizWithQuestionsAndOptions(ctx, quizID)
}

func (s *MemoryAttemptStore) FindPendingAttempt(ctx context.Context, quizID, studentID uint) (*models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindPendingAttempt(ctx, quizID, studentID)
}

func (s *MemoryAttemptStore) HasPassedAttempt(ctx context.Context, quizID, studentID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.HasPassedAttempt(ctx, quizID, studentID)
}

func (s *MemoryAttemptStore) CountAttempts(ctx context.Context, quizID, studentID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CountAttempts(ctx, quizID, studentID)
}

func (s *MemoryAttemptStore) CountPassedAttempts(ctx context.Context, quizID, studentID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CountPassedAttempts(ctx, quizID, studentID)
}

func (s *MemoryAttemptStore) CreateAttempt(ctx context.Context, quizID, studentID uint, attemptNo int) (*models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateAttempt(ctx, quizID, studentID, attemptNo)
}

func (s *MemoryAttemptStore) UpsertAnswer(ctx context.Context, attemptID, questionID uint, selectedOptionIDs []uint, isCorrect bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpsertAnswer(ctx, attemptID, questionID, selectedOptionIDs, isCorrect)
}

func (s *MemoryAttemptStore) DeleteAnswers(ctx context.Context, attemptID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteAnswers(ctx, attemptID)
}

func (s *MemoryAttemptStore) FinalizeAttempt(ctx context.Context, attemptID uint, score int, passed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FinalizeAttempt(ctx, attemptID, score, passed)
}

func (s *MemoryAttemptStore) GetAttempt(ctx context.Context, attemptID uint) (*models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetAttempt(ctx, attemptID)
}

func (s *MemoryAttemptStore) ListAttempts(ctx context.Context, quizID, studentID uint) ([]models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListAttempts(ctx, quizID, studentID)
}

func (s *MemoryAttemptStore) RunLocked(ctx context.Context, _, _ uint, fn func(tx AttemptStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(s.data); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type answerKey struct {
	attemptID  uint
	questionID uint
}

// memData is the unlocked view handed to RunLocked callbacks.
type memData struct {
	quizzes       map[uint]*models.Quiz
	attempts      map[uint]models.Attempt
	answers       map[answerKey]models.Answer
	nextAttemptID uint
	nextAnswerID  uint
}

func newMemData() *memData {
	return &memData{
		quizzes:  make(map[uint]*models.Quiz),
		attempts: make(map[uint]models.Attempt),
		answers:  make(map[answerKey]models.Answer),
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		quizzes:       d.quizzes,
		attempts:      make(map[uint]models.Attempt, len(d.attempts)),
		answers:       make(map[answerKey]models.Answer, len(d.answers)),
		nextAttemptID: d.nextAttemptID,
		nextAnswerID:  d.nextAnswerID,
	}
	for k, v := range d.attempts {
		c.attempts[k] = v
	}
	for k, v := range d.answers {
		c.answers[k] = v
	}
	return c
}

func (d *memData) GetQuizWithQuestionsAndOptions(_ context.Context, quizID uint) (*models.Quiz, error) {
	quiz, ok := d.quizzes[quizID]
	if !ok {
		return nil, nil
	}
	out := *quiz
	return &out, nil
}

func (d *memData) FindPendingAttempt(_ context.Context, quizID, studentID uint) (*models.Attempt, error) {
	for _, a := range d.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && a.SubmittedAt == nil {
			return &a, nil
		}
	}
	return nil, nil
}

func (d *memData) HasPassedAttempt(ctx context.Context, quizID, studentID uint) (bool, error) {
	n, err := d.CountPassedAttempts(ctx, quizID, studentID)
	return n > 0, err
}

func (d *memData) CountAttempts(_ context.Context, quizID, studentID uint) (int, error) {
	n := 0
	for _, a := range d.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (d *memData) CountPassedAttempts(_ context.Context, quizID, studentID uint) (int, error) {
	n := 0
	for _, a := range d.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && a.Passed != nil && *a.Passed {
			n++
		}
	}
	return n, nil
}

func (d *memData) CreateAttempt(ctx context.Context, quizID, studentID uint, attemptNo int) (*models.Attempt, error) {
	if pending, _ := d.FindPendingAttempt(ctx, quizID, studentID); pending != nil {
		return nil, errDuplicatePending
	}

	d.nextAttemptID++
	now := time.Now().UTC()
	a := models.Attempt{
		ID:        d.nextAttemptID,
		QuizID:    quizID,
		StudentID: studentID,
		AttemptNo: attemptNo,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.attempts[a.ID] = a
	return &a, nil
}

func (d *memData) UpsertAnswer(_ context.Context, attemptID, questionID uint, selectedOptionIDs []uint, isCorrect bool) error {
	if _, ok := d.attempts[attemptID]; !ok {
		return notFound("attempt %d not found", attemptID)
	}

	selected := make(pq.Int64Array, 0, len(selectedOptionIDs))
	for _, id := range selectedOptionIDs {
		selected = append(selected, int64(id))
	}

	key := answerKey{attemptID: attemptID, questionID: questionID}
	now := time.Now().UTC()
	answer, ok := d.answers[key]
	if !ok {
		d.nextAnswerID++
		answer = models.Answer{ID: d.nextAnswerID, AttemptID: attemptID, QuestionID: questionID, CreatedAt: now}
	}
	answer.SelectedOptionIDs = selected
	answer.IsCorrect = isCorrect
	answer.UpdatedAt = now
	d.answers[key] = answer
	return nil
}

func (d *memData) DeleteAnswers(_ context.Context, attemptID uint) error {
	for key := range d.answers {
		if key.attemptID == attemptID {
			delete(d.answers, key)
		}
	}
	return nil
}

func (d *memData) FinalizeAttempt(_ context.Context, attemptID uint, score int, passed bool) error {
	a, ok := d.attempts[attemptID]
	if !ok {
		return notFound("attempt %d not found", attemptID)
	}
	now := time.Now().UTC()
	a.SubmittedAt = &now
	a.Score = &score
	a.Passed = &passed
	a.UpdatedAt = now
	d.attempts[attemptID] = a
	return nil
}

func (d *memData) GetAttempt(_ context.Context, attemptID uint) (*models.Attempt, error) {
	a, ok := d.attempts[attemptID]
	if !ok {
		return nil, nil
	}
	a.Answers = nil
	for key, answer := range d.answers {
		if key.attemptID == attemptID {
			a.Answers = append(a.Answers, answer)
		}
	}
	sort.Slice(a.Answers, func(i, j int) bool {
		return a.Answers[i].QuestionID < a.Answers[j].QuestionID
	})
	return &a, nil
}

func (d *memData) ListAttempts(_ context.Context, quizID, studentID uint) ([]models.Attempt, error) {
	var out []models.Attempt
	for _, a := range d.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AttemptNo < out[j].AttemptNo
	})
	return out, nil
}

func (d *memData) RunLocked(_ context.Context, _, _ uint, fn func(tx AttemptStore) error) error {
	return fn(d)
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const studentID = uint(7)

func newAttemptFixture(t *testing.T, passScore int, attemptsAllowed *int) (*MemoryAttemptStore, *AttemptService, *GradingService) {
	t.Helper()
	store := NewMemoryAttemptStore()
	store.PutQuiz(singleQuestionQuiz(1, passScore, attemptsAllowed))
	return store, NewAttemptService(store), NewGradingService(store)
}

func submitChoice(t *testing.T, grading *GradingService, attemptID uint, optionID uint) *GradeResult {
	t.Helper()
	result, err := grading.SubmitAttempt(context.Background(), 1, attemptID, []SubmittedAnswer{
		{QuestionID: 10, SelectedOptionIDs: []uint{optionID}},
	})
	require.NoError(t, err)
	return result
}

func TestStartOrResumeAttempt_QuizNotFound(t *testing.T) {
	_, attempts, _ := newAttemptFixture(t, 50, nil)

	attempt, err := attempts.StartOrResumeAttempt(context.Background(), 99, studentID)
	assert.Nil(t, attempt)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestStartOrResumeAttempt_IdempotentResume(t *testing.T) {
	store, attempts, _ := newAttemptFixture(t, 50, nil)
	ctx := context.Background()

	first, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	second, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.AttemptNo)
	assert.Equal(t, first.StartedAt, second.StartedAt)

	count, err := store.CountAttempts(ctx, 1, studentID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStartOrResumeAttempt_UnlimitedUntilPass(t *testing.T) {
	_, attempts, grading := newAttemptFixture(t, 50, intPtr(1))
	ctx := context.Background()

	for want := 1; want <= 5; want++ {
		attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
		require.NoError(t, err, "attempt %d", want)
		assert.Equal(t, want, attempt.AttemptNo)

		result := submitChoice(t, grading, attempt.ID, 12)
		assert.False(t, result.Passed)
	}
}

func TestStartOrResumeAttempt_RetakeCapAfterPassing(t *testing.T) {
	_, attempts, grading := newAttemptFixture(t, 50, intPtr(2))
	ctx := context.Background()

	// One failure first: it does not count against the cap.
	attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	submitChoice(t, grading, attempt.ID, 12)

	for i := 0; i < 2; i++ {
		attempt, err = attempts.StartOrResumeAttempt(ctx, 1, studentID)
		require.NoError(t, err)
		assert.True(t, submitChoice(t, grading, attempt.ID, 11).Passed)
	}
	assert.Equal(t, 3, attempt.AttemptNo)

	attempt, err = attempts.StartOrResumeAttempt(ctx, 1, studentID)
	assert.Nil(t, attempt)
	assert.True(t, errors.Is(err, ErrAttemptLimitExceeded))
	assert.Equal(t, KindAttemptLimitExceeded, KindOf(err))
}

func TestStartOrResumeAttempt_FailedRetakeAfterPassDoesNotConsumeCap(t *testing.T) {
	_, attempts, grading := newAttemptFixture(t, 50, intPtr(2))
	ctx := context.Background()

	attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	submitChoice(t, grading, attempt.ID, 11)

	// Retake after passing, failed: passed count stays at 1.
	attempt, err = attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	submitChoice(t, grading, attempt.ID, 12)

	attempt, err = attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	assert.Equal(t, 3, attempt.AttemptNo)
}

func TestStartOrResumeAttempt_UnlimitedRetakesWhenAttemptsAllowedNil(t *testing.T) {
	_, attempts, grading := newAttemptFixture(t, 50, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
		require.NoError(t, err)
		submitChoice(t, grading, attempt.ID, 11)
	}
}

func TestStartOrResumeAttempt_PendingResumeBypassesCap(t *testing.T) {
	store, attempts, grading := newAttemptFixture(t, 50, intPtr(1))
	ctx := context.Background()

	attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	submitChoice(t, grading, attempt.ID, 11)

	// A pending attempt created out of band is resumed, not rejected.
	pending, err := store.CreateAttempt(ctx, 1, studentID, 2)
	require.NoError(t, err)

	resumed, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, resumed.ID)
}

func TestStartOrResumeAttempt_StudentsAreIndependent(t *testing.T) {
	_, attempts, grading := newAttemptFixture(t, 50, intPtr(1))
	ctx := context.Background()

	attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	submitChoice(t, grading, attempt.ID, 11)

	other, err := attempts.StartOrResumeAttempt(ctx, 1, studentID+1)
	require.NoError(t, err)
	assert.Equal(t, 1, other.AttemptNo)
	assert.NotEqual(t, attempt.ID, other.ID)
}

func TestStartOrResumeAttempt_ConcurrentCallsCreateOneAttempt(t *testing.T) {
	store, attempts, _ := newAttemptFixture(t, 50, nil)
	ctx := context.Background()

	const workers = 16
	ids := make([]uint, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
			errs[i] = err
			if err == nil {
				ids[i] = attempt.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	count, err := store.CountAttempts(ctx, 1, studentID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStartOrResumeAttempt_StorageFailureIsFatal(t *testing.T) {
	store := NewMemoryAttemptStore()
	store.PutQuiz(singleQuestionQuiz(1, 50, nil))

	attempts := NewAttemptService(&failingStore{AttemptStore: store, failQuiz: true})
	_, err := attempts.StartOrResumeAttempt(context.Background(), 1, studentID)
	require.Error(t, err)
	assert.Equal(t, KindFatal, KindOf(err))
	assert.True(t, errors.Is(err, errStorage))

	attempts = NewAttemptService(&failingStore{AttemptStore: store, failCreate: true})
	_, err = attempts.StartOrResumeAttempt(context.Background(), 1, studentID)
	require.Error(t, err)
	assert.Equal(t, KindFatal, KindOf(err))

	count, err := store.CountAttempts(context.Background(), 1, studentID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetAttemptForStudent(t *testing.T) {
	store, attempts, _ := newAttemptFixture(t, 50, nil)
	store.PutQuiz(singleQuestionQuiz(2, 50, nil))
	ctx := context.Background()

	attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
	require.NoError(t, err)

	got, err := attempts.GetAttemptForStudent(ctx, 1, attempt.ID, studentID)
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, got.ID)

	_, err = attempts.GetAttemptForStudent(ctx, 1, attempt.ID, studentID+1)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = attempts.GetAttemptForStudent(ctx, 2, attempt.ID, studentID)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = attempts.GetAttemptForStudent(ctx, 1, 999, studentID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestListStudentAttempts(t *testing.T) {
	_, attempts, grading := newAttemptFixture(t, 50, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		attempt, err := attempts.StartOrResumeAttempt(ctx, 1, studentID)
		require.NoError(t, err)
		submitChoice(t, grading, attempt.ID, 12)
	}

	list, err := attempts.ListStudentAttempts(ctx, 1, studentID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, a := range list {
		assert.Equal(t, i+1, a.AttemptNo)
		require.NotNil(t, a.Passed)
		assert.False(t, *a.Passed)
	}

	_, err = attempts.ListStudentAttempts(ctx, 42, studentID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestGetQuizForStudent_HidesAnswerKey(t *testing.T) {
	store := NewMemoryAttemptStore()
	store.PutQuiz(buildQuiz(3, 60, intPtr(2),
		questionDef{id: 1, points: 2, options: []optionDef{{id: 1, correct: true}, {id: 2, correct: true}, {id: 3}}},
		questionDef{id: 2, points: 3, options: []optionDef{{id: 4}, {id: 5, correct: true}}},
	))

	view, err := NewAttemptService(store).GetQuizForStudent(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 5, view.TotalPoints)
	assert.Equal(t, 60, view.PassScore)
	require.Len(t, view.Questions, 2)
	assert.True(t, view.Questions[0].Multi)
	assert.False(t, view.Questions[1].Multi)
	assert.Len(t, view.Questions[0].Options, 3)
}

func TestStartAttempt_ReportsCreation(t *testing.T) {
	_, attempts, _ := newAttemptFixture(t, 50, nil)
	ctx := context.Background()

	first, created, err := attempts.StartAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	assert.True(t, created)

	resumed, created, err := attempts.StartAttempt(ctx, 1, studentID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, resumed.ID)
}

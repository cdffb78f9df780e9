package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"coursequiz/models"

	"github.com/redis/go-redis/v9"
)

// CachedAttemptStore serves quiz answer keys from Redis and everything else
// from the wrapped store. Redis failures degrade to the wrapped store.
type CachedAttemptStore struct {
	AttemptStore
	cache *QuizCache
}

func NewCachedAttemptStore(store AttemptStore, cache *QuizCache) *CachedAttemptStore {
	return &CachedAttemptStore{AttemptStore: store, cache: cache}
}

func (s *CachedAttemptStore) GetQuizWithQuestionsAndOptions(ctx context.Context, quizID uint) (*models.Quiz, error) {
	if quiz := s.cache.Get(ctx, quizID); quiz != nil {
		return quiz, nil
	}

	quiz, err := s.AttemptStore.GetQuizWithQuestionsAndOptions(ctx, quizID)
	if err != nil || quiz == nil {
		return quiz, err
	}

	if err := s.cache.Set(ctx, quiz); err != nil {
		slog.Warn("failed to cache quiz", "quiz_id", quizID, "err", err)
	}
	return quiz, nil
}

// QuizCache keeps quizzes with their full answer keys in Redis.
type QuizCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewQuizCache(client *redis.Client, ttl time.Duration) *QuizCache {
	return &QuizCache{redis: client, ttl: ttl}
}

func quizKey(quizID uint) string {
	return fmt.Sprintf("quiz:%d", quizID)
}

func (c *QuizCache) Set(ctx context.Context, quiz *models.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("failed to marshal quiz: %w", err)
	}

	if err := c.redis.Set(ctx, quizKey(quiz.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store in Redis: %w", err)
	}
	return nil
}

// Get returns the cached quiz or nil on a miss or any Redis error.
func (c *QuizCache) Get(ctx context.Context, quizID uint) *models.Quiz {
	data, err := c.redis.Get(ctx, quizKey(quizID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("redis error getting quiz", "quiz_id", quizID, "err", err)
		}
		return nil
	}

	var quiz models.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		slog.Warn("failed to unmarshal cached quiz", "quiz_id", quizID, "err", err)
		return nil
	}
	return &quiz
}

func (c *QuizCache) Invalidate(ctx context.Context, quizID uint) {
	if err := c.redis.Del(ctx, quizKey(quizID)).Err(); err != nil {
		slog.Warn("failed to invalidate cached quiz", "quiz_id", quizID, "err", err)
	}
}

package models

import (
	"time"

	"github.com/lib/pq"
)

type Answer struct {
	ID                uint          `json:"id" gorm:"primaryKey"`
	AttemptID         uint          `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`
	QuestionID        uint          `json:"question_id" gorm:"not null;uniqueIndex:idx_answers_attempt_question"`
	SelectedOptionIDs pq.Int64Array `json:"selected_option_ids" gorm:"type:bigint[];not null"`
	IsCorrect         bool          `json:"is_correct" gorm:"not null"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

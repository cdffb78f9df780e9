package models

import (
	"time"

	"gorm.io/gorm"
)

type Question struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	QuizID    uint           `json:"quiz_id" gorm:"not null;uniqueIndex:idx_questions_quiz_position"`
	Text      string         `json:"text" gorm:"not null"`
	Points    int            `json:"points" gorm:"not null;default:1"`
	Position  int            `json:"position" gorm:"not null;uniqueIndex:idx_questions_quiz_position"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Options []Option `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}

// CorrectOptionIDs returns the set of option ids flagged correct.
func (q *Question) CorrectOptionIDs() map[uint]struct{} {
	correct := make(map[uint]struct{}, len(q.Options))
	for _, option := range q.Options {
		if option.IsCorrect {
			correct[option.ID] = struct{}{}
		}
	}
	return correct
}

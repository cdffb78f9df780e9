package models

import (
	"time"
)

type Attempt struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	QuizID      uint       `json:"quiz_id" gorm:"not null;uniqueIndex:idx_attempts_quiz_student_no"`
	StudentID   uint       `json:"student_id" gorm:"not null;uniqueIndex:idx_attempts_quiz_student_no"`
	AttemptNo   int        `json:"attempt_no" gorm:"not null;uniqueIndex:idx_attempts_quiz_student_no"`
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	Score       *int       `json:"score"` // earned raw points, not percent
	Passed      *bool      `json:"passed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

// Pending reports whether the attempt was started but never submitted.
func (a *Attempt) Pending() bool {
	return a.SubmittedAt == nil
}

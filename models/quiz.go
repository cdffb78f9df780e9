package models

import (
	"time"

	"gorm.io/gorm"
)

type Quiz struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	CourseID     uint   `json:"course_id" gorm:"not null;index"`
	LessonID     *uint  `json:"lesson_id,omitempty" gorm:"index"`
	Title        string `json:"title" gorm:"not null"`
	Description  string `json:"description"`
	InstructorID uint   `json:"instructor_id" gorm:"not null;index"`

	// TimeLimitS is advisory and only surfaced to clients.
	TimeLimitS      *int `json:"time_limit_s,omitempty"`
	// AttemptsAllowed caps passed attempts; nil means unlimited retakes.
	AttemptsAllowed *int `json:"attempts_allowed"`
	// PassScore is a percent, 0-100.
	PassScore       int  `json:"pass_score" gorm:"not null;default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Instructor User       `json:"-" gorm:"foreignKey:InstructorID"`
	Questions  []Question `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
}

// TotalPoints sums the points of every question, answered or not.
func (q *Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

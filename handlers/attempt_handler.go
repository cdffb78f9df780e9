package handlers

import (
	"net/http"

	"coursequiz/services"

	"github.com/gin-gonic/gin"
)

// Broadcaster pushes attempt events to instructors watching a quiz.
type Broadcaster interface {
	BroadcastToQuiz(quizID uint, messageType string, payload interface{})
}

type AttemptHandler struct {
	attemptService *services.AttemptService
	gradingService *services.GradingService
	hub            Broadcaster
}

func NewAttemptHandler(attemptService *services.AttemptService, gradingService *services.GradingService, hub Broadcaster) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		gradingService: gradingService,
		hub:            hub,
	}
}

type SubmitAttemptRequest struct {
	Answers []services.SubmittedAnswer `json:"answers" binding:"dive"`
}

// TakeQuiz returns the quiz for a student, without the answer key.
func (h *AttemptHandler) TakeQuiz(c *gin.Context) {
	quizID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	quiz, err := h.attemptService.GetQuizForStudent(c.Request.Context(), quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	studentID, ok := currentUserID(c)
	if !ok {
		return
	}
	quizID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	attempt, created, err := h.attemptService.StartAttempt(c.Request.Context(), quizID, studentID)
	if err != nil {
		respondError(c, err)
		return
	}

	if created && h.hub != nil {
		h.hub.BroadcastToQuiz(quizID, services.EventAttemptStarted, gin.H{
			"attempt_id": attempt.ID,
			"student_id": studentID,
			"attempt_no": attempt.AttemptNo,
			"started_at": attempt.StartedAt,
		})
	}

	c.JSON(http.StatusOK, attempt)
}

func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	studentID, ok := currentUserID(c)
	if !ok {
		return
	}
	quizID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	attempts, err := h.attemptService.ListStudentAttempts(c.Request.Context(), quizID, studentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	studentID, ok := currentUserID(c)
	if !ok {
		return
	}
	quizID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	attemptID, ok := uintParam(c, "attemptId")
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttemptForStudent(c.Request.Context(), quizID, attemptID, studentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SubmitAttempt grades the attempt after checking it belongs to the caller.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	studentID, ok := currentUserID(c)
	if !ok {
		return
	}
	quizID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	attemptID, ok := uintParam(c, "attemptId")
	if !ok {
		return
	}

	var req SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.attemptService.GetAttemptForStudent(c.Request.Context(), quizID, attemptID, studentID); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.gradingService.SubmitAttempt(c.Request.Context(), quizID, attemptID, req.Answers)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastToQuiz(quizID, services.EventAttemptSubmitted, gin.H{
			"student_id": studentID,
			"result":     result,
		})
	}

	c.JSON(http.StatusOK, result)
}

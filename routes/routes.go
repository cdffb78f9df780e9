package routes

import (
	"log/slog"
	"net/http"

	"coursequiz/handlers"
	"coursequiz/middleware"
	"coursequiz/models"
	"coursequiz/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	quizHandler *handlers.QuizHandler,
	attemptHandler *handlers.AttemptHandler,
	hub *services.Hub,
	quizService *services.QuizService,
	jwtSecret string,
	corsOrigins []string,
) {
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			protected.GET("/auth/profile", authHandler.GetProfile)

			quizzes := protected.Group("/quizzes")
			{
				// Authoring
				instructor := quizzes.Group("")
				instructor.Use(middleware.RequireRole(models.RoleInstructor))
				{
					instructor.GET("", quizHandler.GetInstructorQuizzes)
					instructor.POST("", quizHandler.CreateQuiz)
					instructor.GET("/:id", quizHandler.GetQuizByID)
					instructor.PUT("/:id", quizHandler.UpdateQuiz)
					instructor.DELETE("/:id", quizHandler.DeleteQuiz)
				}

				// Taking
				student := quizzes.Group("/:id")
				student.Use(middleware.RequireRole(models.RoleStudent))
				{
					student.GET("/take", attemptHandler.TakeQuiz)
					student.POST("/attempts", attemptHandler.StartAttempt)
					student.GET("/attempts", attemptHandler.ListAttempts)
					student.GET("/attempts/:attemptId", attemptHandler.GetAttempt)
					student.POST("/attempts/:attemptId/submit", attemptHandler.SubmitAttempt)
				}
			}
		}
	}

	// Live attempt feed for the quiz owner
	upgrader := newUpgrader(corsOrigins)
	router.GET("/ws/quizzes/:id",
		middleware.AuthMiddleware(jwtSecret),
		middleware.RequireRole(models.RoleInstructor),
		func(c *gin.Context) {
			instructorID := c.GetUint(middleware.ContextUserID)
			quizID, ok := parseQuizID(c)
			if !ok {
				return
			}

			if err := quizService.CheckOwnership(c.Request.Context(), quizID, instructorID); err != nil {
				slog.Warn("websocket access denied", "quiz_id", quizID, "instructor_id", instructorID, "err", err)
				c.JSON(http.StatusForbidden, gin.H{"error": "Not the owner of this quiz"})
				return
			}

			conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
			if err != nil {
				slog.Warn("websocket upgrade failed", "quiz_id", quizID, "err", err)
				return
			}

			hub.RegisterClient(conn, quizID, instructorID)
			slog.Info("instructor watching quiz", "quiz_id", quizID, "instructor_id", instructorID)
		})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

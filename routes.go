package main

import "github.com/gin-gonic/gin"

func SetupRoutes(r *gin.Engine, app *App) {

	// Public Routes
	r.GET("/healthz", app.Healthz)
	r.POST("/signup", app.Signup)
	r.POST("/login", app.Login)

	// Payment provider webhook, authenticated by signature
	if app.Payments != nil {
		r.POST("/api/events/:id/payments/confirm", app.ConfirmPayment)
	}

	// Protected Routes
	authorized := r.Group("/api")
	authorized.Use(app.AuthMiddleware())
	{
		// ACCOUNTS
		authorized.GET("/me", app.Me)
		authorized.POST("/users", app.CreateUser)
		authorized.GET("/users/:id", app.GetUser)
		authorized.PATCH("/users/:id/role", app.UpdateUserRole)
		authorized.PATCH("/users/:id/club", app.AssignUserClub)
		authorized.GET("/users/:id/credits", app.GetCreditHistory)

		// EVENTS
		authorized.POST("/events", app.CreateEvent)
		authorized.GET("/events/search", app.SearchEvents)
		authorized.GET("/events/organized", app.GetOrganizedEvents)
		authorized.GET("/events/joined", app.GetJoinedEvents)
		authorized.GET("/events/:id", app.GetEvent)
		authorized.DELETE("/events/:id", app.DeleteEvent)
		authorized.POST("/events/:id/approve", app.ApproveEvent)

		// ATTENDANCE
		authorized.POST("/events/:id/participants", app.JoinEvent)
		authorized.DELETE("/events/:id/participants", app.LeaveEvent)

		// TASKS
		authorized.POST("/tasks", app.CreateTask)
		authorized.GET("/tasks", app.ListTasks)
		authorized.GET("/tasks/:id", app.GetTask)
		authorized.PATCH("/tasks/:id/status", app.UpdateTaskStatus)
		authorized.POST("/tasks/:id/verify", app.VerifyTask)
		authorized.DELETE("/tasks/:id", app.DeleteTask)
	}
}

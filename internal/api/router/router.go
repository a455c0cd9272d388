package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/schedulex/internal/api/handler"
	"github.com/cuongbtq/schedulex/internal/api/validation"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}

	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "schedulex-api",
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "schedulex-api",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	orderHandler := handler.NewOrderHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a ONE_TIME or RECURRING job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/stats - Job counts per status
			jobs.GET("/stats", jobHandler.GetStats)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		orders := v1.Group("/orders")
		{
			// POST /api/v1/orders - Create an order and attempt payment
			orders.POST("", orderHandler.CreateOrder)

			// GET /api/v1/orders - List orders with filtering and pagination
			orders.GET("", orderHandler.ListOrders)

			// GET /api/v1/orders/stats - Order counts per payment status
			orders.GET("/stats", orderHandler.GetStats)

			// GET /api/v1/orders/:order_id - Get order details
			orders.GET("/:order_id", orderHandler.GetOrder)

			// GET /api/v1/orders/:order_id/transactions - Payment attempts of an order
			orders.GET("/:order_id/transactions", orderHandler.ListTransactions)

			// POST /api/v1/orders/:order_id/retry - Retry a failed payment now
			orders.POST("/:order_id/retry", orderHandler.RetryPayment)
		}
	}

	return r
}

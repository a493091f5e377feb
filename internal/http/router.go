// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/http/handlers"
	"dispatch/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", deps.Auth)

	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.Trips, deps.Log)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/status", orderHandler.AdvanceStatus)
	api.POST("/orders/:id/rollback", orderHandler.Rollback)
	api.POST("/orders/:id/assign", orderHandler.Assign)
	api.POST("/orders/:id/unassign", orderHandler.Unassign)
	api.PUT("/orders/:id/financials", orderHandler.UpdateFinancials)

	tripHandler := handlers.NewTripHandler(deps.Trips, deps.Log)
	api.PUT("/trips/:id/status", tripHandler.SetStatus)
	api.POST("/trips/:id/recalculate", tripHandler.Recalculate)
	api.PUT("/trips/:id/carrier-pay", tripHandler.SetCarrierPay)
	api.POST("/trips/:id/expenses", tripHandler.AddExpense)
	api.DELETE("/trips/:id/expenses/:expenseId", tripHandler.DeleteExpense)
	api.DELETE("/trips/:id", tripHandler.Delete)

	pnlHandler := handlers.NewPnLHandler(deps.PnL, deps.Log)
	api.GET("/pnl", pnlHandler.Period)
	api.POST("/pnl/compute", pnlHandler.Compute)

	return r
}

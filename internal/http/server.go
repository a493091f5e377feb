// README: API gateway; wires module services behind the router and builds the http.Server.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dispatch/internal/http/handlers"
)

type ServerDeps struct {
	Orders handlers.OrderService
	Trips  handlers.TripService
	PnL    handlers.PnLService
	// Auth scopes /api requests to a tenant: middleware.Auth or, in development, middleware.DevTenant.
	Auth gin.HandlerFunc
	Log  logrus.FieldLogger
}

func NewServer(addr string, deps ServerDeps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// README: Entry point; loads config, wires stores, locks and services, serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dispatch/internal/config"
	httptransport "dispatch/internal/http"
	"dispatch/internal/http/middleware"
	"dispatch/internal/infra"
	"dispatch/internal/maps"
	"dispatch/internal/modules/order"
	"dispatch/internal/modules/pnl"
	"dispatch/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth := middleware.DevTenant()
	if cfg.Auth.Disabled {
		log.Warn("auth disabled; tenant is read from the " + middleware.TenantHeader + " header")
	} else {
		if cfg.Auth.ProjectID == "" {
			log.Fatal("DISPATCH_FIREBASE_PROJECT_ID is required unless DISPATCH_AUTH_DISABLED is set")
		}
		verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Auth.ProjectID, cfg.Auth.CredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("firebase init")
		}
		auth = middleware.Auth(verifier)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	defer dbPool.Close()

	var locker trip.Locker = trip.NewKeyedMutex()
	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.WithError(err).Fatal("redis")
		}
		defer redisClient.Close()
		locker = trip.Chain{locker, trip.NewRedisLocker(redisClient, cfg.Redis.LockTTL)}
		log.WithField("addr", cfg.Redis.Addr).Info("cross-process trip locks enabled")
	}

	tripOpts := []trip.Option{trip.WithLogger(log), trip.WithLocker(locker)}
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region, cfg.Maps.RateLimit)
		if err != nil {
			log.WithError(err).Fatal("maps client")
		}
		tripOpts = append(tripOpts, trip.WithMilesEstimator(routes))
	}

	orderOpts := []order.Option{order.WithLogger(log)}
	if cfg.Orders.CancellableOnly {
		orderOpts = append(orderOpts, order.WithCancellableOnly())
	}
	orderSvc := order.NewService(order.NewStore(dbPool), orderOpts...)
	tripSvc := trip.NewService(trip.NewStore(dbPool), tripOpts...)
	pnlSvc := pnl.NewService(pnl.NewStore(dbPool), log)

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Orders: orderSvc,
		Trips:  tripSvc,
		PnL:    pnlSvc,
		Auth:   auth,
		Log:    log,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithField("addr", cfg.HTTP.Addr).Info("dispatch api listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server")
	}
}

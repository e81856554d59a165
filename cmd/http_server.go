package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/atelier/api"
	"github.com/frahmantamala/atelier/internal/approval"
	"github.com/frahmantamala/atelier/internal/auth"
	"github.com/frahmantamala/atelier/internal/checkout"
	"github.com/frahmantamala/atelier/internal/course"
	"github.com/frahmantamala/atelier/internal/notification"
	"github.com/frahmantamala/atelier/internal/payment"
	"github.com/frahmantamala/atelier/internal/transport"
	"github.com/frahmantamala/atelier/internal/transport/openapi"
	"github.com/frahmantamala/atelier/internal/transport/rest"
	"github.com/frahmantamala/atelier/internal/user"
	"github.com/frahmantamala/atelier/internal/webhook"
	"github.com/frahmantamala/atelier/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and gateway webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(); err != nil {
			fmt.Fprintf(os.Stderr, "server: %v\n", err)
			os.Exit(1)
		}
	},
}

func startHTTPServer() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	ctx := context.Background()
	if _, err := openapi.Load(ctx, api.Spec); err != nil {
		return err
	}

	sqlxDB, db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sqlxDB.Close()

	svc, err := buildServices(ctx, cfg, sqlxDB, db, log)
	if err != nil {
		return fmt.Errorf("failed to build services: %w", err)
	}

	base := transport.NewBaseHandler(log)
	validator := auth.NewJWTValidator(cfg.Security)

	handlers := rest.Handlers{
		Health:       rest.NewHealthHandler(map[string]rest.Pinger{"database": sqlxDB}),
		Authenticate: auth.NewMiddleware(base, validator, svc.Users).Authenticate,
		User:         user.NewHandler(base, svc.Users),
		Course:       course.NewHandler(base, svc.Courses),
		Checkout:     checkout.NewHandler(base, svc.Checkout, svc.Reports),
		Approval:     approval.NewHandler(base, svc.Approval),
		Payment:      payment.NewHandler(base, svc.Ledger),
		Notification: notification.NewHandler(base, svc.Notification),
	}

	// a disabled gateway must not expose a live webhook
	var stripeVerifier webhook.StripeVerifier
	if svc.Stripe != nil {
		stripeVerifier = svc.Stripe
	}
	var khaltiVerifier webhook.KhaltiVerifier
	if svc.Khalti != nil {
		khaltiVerifier = svc.Khalti
	}
	handlers.Webhook = webhook.NewHandler(base, stripeVerifier, khaltiVerifier, svc.Dispatcher)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, handlers, rest.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPISpec:    api.Spec,
	}, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "address", addr,
			"stripe_enabled", svc.Stripe != nil,
			"khalti_enabled", svc.Khalti != nil)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := svc.Bus.Wait(shutdownCtx); err != nil {
		log.Warn("event handlers still running at shutdown", "error", err)
	}

	log.Info("server stopped")
	return nil
}

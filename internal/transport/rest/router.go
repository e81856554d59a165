package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/atelier/internal/approval"
	"github.com/frahmantamala/atelier/internal/checkout"
	"github.com/frahmantamala/atelier/internal/course"
	"github.com/frahmantamala/atelier/internal/notification"
	"github.com/frahmantamala/atelier/internal/payment"
	"github.com/frahmantamala/atelier/internal/transport/middleware"
	"github.com/frahmantamala/atelier/internal/transport/openapi"
	"github.com/frahmantamala/atelier/internal/transport/swagger"
	"github.com/frahmantamala/atelier/internal/user"
	"github.com/frahmantamala/atelier/internal/webhook"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Handlers groups everything the router mounts. Nil handlers are skipped.
type Handlers struct {
	Health       *HealthHandler
	Authenticate func(http.Handler) http.Handler
	User         *user.Handler
	Course       *course.Handler
	Checkout     *checkout.Handler
	Webhook      *webhook.Handler
	Approval     *approval.Handler
	Payment      *payment.Handler
	Notification *notification.Handler
}

type RouterOptions struct {
	AllowedOrigins string
	OpenAPISpec    []byte
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts RouterOptions, logger *slog.Logger) {
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	if len(opts.OpenAPISpec) > 0 {
		router.Get("/openapi.yml", openapi.Handler(opts.OpenAPISpec))
		router.Handle("/swagger/*", swagger.Handler("/openapi.yml"))
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		// gateways authenticate by signature or lookup, never by bearer token
		if h.Webhook != nil {
			r.Post("/webhooks/stripe", h.Webhook.Stripe)
			r.Get("/webhooks/khalti", h.Webhook.Khalti)
			r.Post("/webhooks/khalti", h.Webhook.Khalti)
		}

		if h.Authenticate == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Authenticate)
			pr.Use(middleware.UserContext)

			if h.User != nil {
				pr.Get("/users/me", h.User.GetCurrentUser)
			}
			if h.Course != nil {
				pr.Post("/courses/{id}/enroll", h.Course.EnrollFree)
			}
			if h.Checkout != nil {
				pr.Post("/checkout", h.Checkout.Checkout)
			}
			if h.Approval != nil {
				pr.Route("/payment-requests", func(ar chi.Router) {
					ar.Post("/", h.Approval.Submit)
					ar.Get("/me", h.Approval.ListMine)
					ar.Post("/proof-uploads", h.Approval.PresignProofUpload)
					ar.Patch("/{id}/cancel", h.Approval.Cancel)
				})
			}
			if h.Payment != nil {
				pr.Get("/payments/me", h.Payment.ListMine)
			}
			if h.Notification != nil {
				pr.Get("/notifications", h.Notification.List)
				pr.Patch("/notifications/read", h.Notification.MarkRead)
			}

			pr.Route("/admin", func(adm chi.Router) {
				adm.Use(middleware.RequireAdmin)

				if h.Approval != nil {
					adm.Get("/payment-requests", h.Approval.List)
					adm.Patch("/payment-requests/{id}/approve", h.Approval.Approve)
					adm.Patch("/payment-requests/{id}/reject", h.Approval.Reject)
				}
				if h.Payment != nil {
					adm.Post("/payments/{transactionId}/refunds", h.Payment.AppendRefund)
				}
				if h.Checkout != nil {
					adm.Get("/checkouts/summary", h.Checkout.Summary)
				}
			})
		})
	})
}

package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/smartdiet/smartdiet/internal/handler"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/middleware"
	"github.com/smartdiet/smartdiet/internal/model"
)

// Handlers groups the HTTP handlers mounted by NewRouter. Webhook and
// Metrics are optional.
type Handlers struct {
	Root         *handler.Handler
	Health       *handler.HealthHandler
	Metrics      *handler.MetricsHandler
	Account      *handler.AccountHandler
	Profile      *handler.ProfileHandler
	Verification *handler.VerificationHandler
	Admin        *handler.AdminHandler
	Care         *handler.CareHandler
	DietPlan     *handler.DietPlanHandler
	Chat         *handler.ChatHandler
	Progress     *handler.ProgressHandler
	Review       *handler.ReviewHandler
	Consultation *handler.ConsultationHandler
	Assistant    *handler.AssistantHandler
	Webhook      *handler.WebhookHandler
}

// RouterConfig carries the middleware dependencies of NewRouter.
type RouterConfig struct {
	Logger   *slog.Logger
	Sessions middleware.SessionStore
	Cache    middleware.AuthCache
	Limiter  middleware.RateLimiter
	Metrics  metrics.Recorder

	CORSAllowedOrigins []string
	IsDevelopment      bool
	MaxBodySize        int64

	UserRateLimitEnabled bool
	IPRateLimitEnabled   bool
	IPRPS                int
	IPBurst              int
}

// Rate limit scopes for unauthenticated routes.
const (
	scopeAuth      = "auth"
	scopeAssistant = "assistant"
)

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(h Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Trace)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins)))

	// Health endpoints (no auth required)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	if h.Metrics != nil {
		r.Get("/metrics", h.Metrics.Metrics)
	}

	r.Get("/", h.Root.Index)

	authCfg := middleware.AuthConfig{
		Logger:   cfg.Logger,
		Sessions: cfg.Sessions,
		Cache:    cfg.Cache,
		Metrics:  cfg.Metrics,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:      cfg.Logger,
		Limiter:     cfg.Limiter,
		UserEnabled: cfg.UserRateLimitEnabled,
		IPEnabled:   cfg.IPRateLimitEnabled,
		IPRPS:       cfg.IPRPS,
		IPBurst:     cfg.IPBurst,
	}

	jsonBody := chi.Chain(middleware.MaxBodySize(cfg.MaxBodySize), middleware.RequireJSON)

	// Public assistant forms
	r.Group(func(r chi.Router) {
		r.Use(jsonBody.Handler)
		r.Use(middleware.RateLimitIP(rateLimitCfg, scopeAssistant))
		r.Post("/chat", h.Assistant.Chat)
		r.Post("/mealplan", h.Assistant.MealPlan)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(jsonBody.Handler)
			r.Use(middleware.RateLimitIP(rateLimitCfg, scopeAuth))
			r.Post("/auth/signup", h.Account.Signup)
			r.Post("/auth/login", h.Account.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitUser(rateLimitCfg))

			// Multipart uploads enforce their own size limit.
			r.With(middleware.RequireRole(model.RoleDoctor)).
				Post("/verification/documents", h.Verification.Upload)

			// Event streams stay open past the write timeout.
			r.With(middleware.RequireRole(model.RolePatient, model.RoleDoctor)).
				Get("/conversations/{patientID}/stream", h.Chat.Stream)

			r.Group(func(r chi.Router) {
				r.Use(jsonBody.Handler)
				mountAccount(r, h)
				mountDoctor(r, h)
				mountPatient(r, h)
				mountAdmin(r, h)
			})
		})
	})

	r.NotFound(h.Root.NotFound)
	r.MethodNotAllowed(h.Root.MethodNotAllowed)

	return r
}

// mountAccount registers routes open to every signed-in role.
func mountAccount(r chi.Router, h Handlers) {
	r.Post("/auth/logout", h.Account.Logout)
	r.Post("/auth/logout-all", h.Account.LogoutAll)

	r.Get("/me", h.Profile.Me)
	r.Patch("/me", h.Profile.UpdateMe)

	r.Get("/nutritionists", h.Profile.ListNutritionists)
	r.Get("/nutritionists/{id}", h.Profile.GetNutritionist)
	r.Get("/nutritionists/{id}/reviews", h.Review.List)

	r.Patch("/reviews/{id}", h.Review.Update)
	r.Delete("/reviews/{id}", h.Review.Delete)

	r.Post("/consultations/{id}/cancel", h.Consultation.Cancel)

	participant := r.With(middleware.RequireRole(model.RolePatient, model.RoleDoctor))
	participant.Get("/conversations/{patientID}/messages", h.Chat.List)
	participant.Post("/conversations/{patientID}/messages", h.Chat.Send)
}

// mountDoctor registers nutritionist routes. Verification routes only need
// the doctor role; everything else needs an approved doctor.
func mountDoctor(r chi.Router, h Handlers) {
	doctor := r.With(middleware.RequireRole(model.RoleDoctor))
	doctor.Get("/verification", h.Verification.Status)
	doctor.Delete("/verification/documents/{id}", h.Verification.DeleteDocument)
	doctor.Post("/verification/submit", h.Verification.Submit)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireVerifiedDoctor())

		r.Get("/requests", h.Care.ListRequests)
		r.Post("/requests/{id}/approve", h.Care.Approve)
		r.Post("/requests/{id}/reject", h.Care.Reject)

		r.Route("/patients", func(r chi.Router) {
			r.Get("/", h.Care.Roster)
			r.Get("/{id}", h.Care.Patient)
			r.Put("/{id}/diet-plan", h.DietPlan.Save)
			r.Get("/{id}/diet-plan", h.DietPlan.Active)
			r.Get("/{id}/diet-plan/history", h.DietPlan.History)
			r.Get("/{id}/diet-plan/export", h.DietPlan.Export)
			r.Get("/{id}/progress", h.Progress.Summary)
		})

		r.Get("/consultations", h.Consultation.ListUpcoming)

		if h.Webhook != nil {
			r.Route("/webhooks", func(r chi.Router) {
				r.Get("/", h.Webhook.List)
				r.Post("/", h.Webhook.Create)
				r.Get("/{id}", h.Webhook.Get)
				r.Patch("/{id}", h.Webhook.Update)
				r.Delete("/{id}", h.Webhook.Delete)
				r.Post("/{id}/rotate-secret", h.Webhook.RotateSecret)
				r.Get("/{id}/deliveries", h.Webhook.ListDeliveries)
				r.Post("/{id}/deliveries/{deliveryID}/retry", h.Webhook.RetryDelivery)
			})
		}
	})
}

// mountPatient registers routes for patients.
func mountPatient(r chi.Router, h Handlers) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(model.RolePatient))

		r.Post("/nutritionists/{id}/requests", h.Care.RequestNutritionist)
		r.Post("/nutritionists/{id}/reviews", h.Review.Create)

		r.Get("/me/assignment", h.Care.Assignment)
		r.Get("/me/diet-plan", h.DietPlan.Active)
		r.Get("/me/diet-plan/history", h.DietPlan.History)
		r.Get("/me/diet-plan/export", h.DietPlan.Export)

		r.Post("/me/progress/meals", h.Progress.LogMeal)
		r.Get("/me/progress", h.Progress.Summary)

		r.Post("/me/consultations", h.Consultation.Book)
		r.Get("/me/consultations", h.Consultation.ListMine)
	})
}

// mountAdmin registers the verification review routes.
func mountAdmin(r chi.Router, h Handlers) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin())
		r.Get("/verifications", h.Admin.ListPending)
		r.Post("/verifications/{doctorID}/approve", h.Admin.Approve)
		r.Post("/verifications/{doctorID}/reject", h.Admin.Reject)
		r.Get("/documents/{id}", h.Admin.Document)
		r.Get("/stats", h.Admin.Stats)
	})
}

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auth "github.com/coachline/testdesk/internal/auth/middleware"
	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/grading"
	"github.com/coachline/testdesk/internal/metrics"
	"github.com/coachline/testdesk/internal/rbac"
)

type Deps struct {
	Store   exam.Store
	Engine  *grading.Engine
	Auth    *auth.AuthService
	Users   *auth.UserRepo // nil disables /auth/login
	Metrics *metrics.Metrics

	// Gatherer backs /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer

	// RoleFromDB re-reads the caller's role on each request.
	RoleFromDB func(http.Handler) http.Handler

	CORSOrigins        []string
	RequestTimeout     time.Duration
	DefaultExamMinutes int
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.Users != nil {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		if d.RoleFromDB != nil {
			pr.Use(d.RoleFromDB)
		}

		pr.With(rbac.Require("exam:view")).
			Get("/exams", ListExamsHandler(d.Store, d.Store))
		pr.With(rbac.Require("exam:view")).
			Get("/exams/{examID}", GetPaperHandler(d.Store, d.Store, d.DefaultExamMinutes))
		pr.With(rbac.Require("response:save")).
			Put("/exams/{examID}/responses", SaveResponsesHandler(d.Store, d.Store, d.Metrics))
		pr.With(rbac.Require("response:save")).
			Put("/exams/{examID}/responses/{questionID}", SaveResponseHandler(d.Store, d.Store, d.Metrics))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts", SubmitHandler(d.Engine))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/exams/{examID}/result", ResultHandler(d.Store))

		pr.With(rbac.Require("exam:create")).
			Post("/exams", UploadExamHandler(d.Store))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/attempts", ListAttemptsHandler(d.Store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

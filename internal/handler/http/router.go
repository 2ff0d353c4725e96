package http

import (
	"io"
	"log/slog"

	"github.com/busfleet/payroll-backend-go/internal/config"
	"github.com/busfleet/payroll-backend-go/internal/domain/auth"
	"github.com/busfleet/payroll-backend-go/internal/handler/http/middleware"
	"github.com/busfleet/payroll-backend-go/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(cfg config.AppConfig, logger *slog.Logger, JWTService jwt.Service, payrollHandler PayrollHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {
		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired)

			r.Route("/payroll", func(r chi.Router) {
				r.With(middleware.RequirePermission(auth.PermissionManagePayroll)).Post("/preview", payrollHandler.Preview)

				r.Route("/periods", func(r chi.Router) {
					r.With(middleware.RequirePermission(auth.PermissionManagePayroll)).Post("/", payrollHandler.CreatePeriod)

					r.Group(func(r chi.Router) {
						r.Use(middleware.RequirePermission(auth.PermissionViewPayroll))
						r.Get("/", payrollHandler.ListPeriods)
						r.Get("/{id}", payrollHandler.GetPeriod)
						r.Get("/{id}/records/{recordId}/payslip", payrollHandler.GetPayslip)
					})

					r.Group(func(r chi.Router) {
						r.Use(middleware.RequirePermission(auth.PermissionApprovePayroll))
						r.Post("/{id}/approve", payrollHandler.Approve)
						r.Post("/{id}/pay", payrollHandler.MarkPaid)
					})
				})
			})
		})
	})

	return r
}

// NewLogger builds the JSON request logger in the ECS shape httplog expects.
func NewLogger(cfg config.AppConfig, level slog.Level, w io.Writer) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(false)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	)
}

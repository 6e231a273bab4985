package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
	"golang.org/x/time/rate"

	// Регистрация OpenAPI документа.
	_ "github.com/magabrotheeeer/auth-service/docs"
	"github.com/magabrotheeeer/auth-service/internal/config"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/auth/code"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/auth/password"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/users/list"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/users/read"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/users/remove"
	"github.com/magabrotheeeer/auth-service/internal/http/handlers/users/update"
	"github.com/magabrotheeeer/auth-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
	"github.com/magabrotheeeer/auth-service/internal/metrics"
	services "github.com/magabrotheeeer/auth-service/internal/services/auth"
	healthsvc "github.com/magabrotheeeer/auth-service/internal/services/health"
)

// Routes зависимости, необходимые для регистрации маршрутов.
type Routes struct {
	Log       *slog.Logger
	Users     *services.AuthService
	Health    *healthsvc.Service
	Policy    middlewarectx.Classifier
	Tokens    middlewarectx.TokenValidator
	Issuer    string
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	RateLimit config.RateLimit
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, d Routes) {
	// Глобальные middleware, шлюз авторизации стоит перед маршрутизацией
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.StripSlashes,
		middlewarectx.AuthorizationGate(d.Log, d.Policy, d.Tokens, d.Issuer, d.Metrics),
	)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/usuarios", register.New(d.Log, d.Users).ServeHTTP)
		r.With(limiter(d)).Post("/sesiones", login.New(d.Log, d.Users).ServeHTTP)
		r.With(limiter(d)).Post("/codigos", code.New(d.Log, d.Users).ServeHTTP)
		r.With(limiter(d)).Patch("/usuarios/{usuario}/contrasena", password.New(d.Log, d.Users).ServeHTTP)

		r.Get("/usuarios", list.New(d.Log, d.Users).ServeHTTP)
		r.Get("/usuarios/{usuario}", read.New(d.Log, d.Users).ServeHTTP)
		r.Patch("/usuarios/{usuario}", update.New(d.Log, d.Users).ServeHTTP)
		r.Delete("/usuarios/{usuario}", remove.New(d.Log, d.Users).ServeHTTP)
	})

	hh := health.New(d.Health)
	r.Get("/health", hh.Health)
	r.Get("/health/ready", hh.Ready)
	r.Get("/health/live", hh.Live)

	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Get("/v3/api-docs", apiDocs(d.Log))
	r.Get("/swagger-ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger-ui/index.html", http.StatusMovedPermanently)
	})
	r.Get("/swagger-ui/*", httpSwagger.Handler(httpSwagger.URL("/v3/api-docs")))
}

// limiter у каждого маршрута свой бакет.
func limiter(d Routes) func(http.Handler) http.Handler {
	l := rate.NewLimiter(rate.Limit(d.RateLimit.RPS), d.RateLimit.Burst)
	return middlewarectx.RateLimitMiddleware(d.Log, l, d.Metrics)
}

func apiDocs(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		doc, err := swag.ReadDoc()
		if err != nil {
			log.Error("failed to read api docs", sl.Err(err))
			http.Error(w, "api docs unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	}
}

// Package middlewarectx содержит HTTP middleware сервиса: шлюз авторизации
// и ограничитель частоты запросов.
//
// AuthorizationGate добавляет CORS заголовки, отвечает на preflight запросы,
// классифицирует маршрут и для защищённых маршрутов проверяет токен из
// заголовка Authorization. В случае успеха кладёт в контекст имя пользователя,
// роль и subject токена.
package middlewarectx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/auth-service/internal/http/response"
	"github.com/magabrotheeeer/auth-service/internal/http/routepolicy"
	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
	"github.com/magabrotheeeer/auth-service/internal/metrics"
	"github.com/magabrotheeeer/auth-service/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// User ключ для имени пользователя в контексте
	User Key = "username"
	// Role ключ для роли пользователя в контексте
	Role Key = "role"
	// Subject ключ для subject токена (email) в контексте
	Subject Key = "subject"
)

// Тексты ответов шлюза.
const (
	MsgTokenRequired  = "token is required"
	MsgInvalidToken   = "invalid or expired token"
	MsgBadIssuer      = "token issuer is not valid"
	MsgAdminRequired  = "administrator role required"
	MsgRoleNotAllowed = "role not allowed for this resource"
	MsgForeignUser    = "cannot access another user's data"
	MsgAccessDenied   = "access denied"
	MsgInternal       = "internal server error"
)

const (
	bearerPrefix = "Bearer "

	corsAllowOrigin  = "*"
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Origin, Accept, Content-Type, Authorization"
)

type gate struct {
	log     *slog.Logger
	policy  Classifier
	tokens  TokenValidator
	issuer  string
	metrics *metrics.Metrics
}

// outcome результат проверки. Нулевой status означает пропуск запроса дальше.
type outcome struct {
	status  int
	message string
	ctx     context.Context
}

// AuthorizationGate возвращает middleware шлюза авторизации.
func AuthorizationGate(log *slog.Logger, policy Classifier, tokens TokenValidator, issuer string, m *metrics.Metrics) func(http.Handler) http.Handler {
	g := &gate{log: log, policy: policy, tokens: tokens, issuer: issuer, metrics: m}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AuthorizationGate"

			log := g.log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			setCORSHeaders(w)
			if r.Method == http.MethodOptions {
				g.metrics.GateDecision("preflight", "forward")
				w.WriteHeader(http.StatusOK)
				return
			}

			decision := g.policy.Classify(r.Method, r.URL.Path)
			res := g.authorize(log, r, decision)
			if res.status != 0 {
				g.metrics.GateDecision(decision.Class.String(), outcomeLabel(res.status))
				render.Status(r, res.status)
				render.JSON(w, r, response.Error(res.message))
				return
			}

			g.metrics.GateDecision(decision.Class.String(), "forward")
			if res.ctx != nil {
				r = r.WithContext(res.ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", corsAllowOrigin)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
}

func (g *gate) authorize(log *slog.Logger, r *http.Request, d routepolicy.Decision) (res outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic during token validation", slog.Any("panic", rec))
			res = outcome{status: http.StatusInternalServerError, message: MsgInternal}
		}
	}()

	switch d.Class {
	case routepolicy.Public:
		return outcome{}
	case routepolicy.Denied:
		log.Warn("unmatched route denied", slog.String("method", r.Method), slog.String("path", r.URL.Path))
		return reject(http.StatusForbidden, MsgAccessDenied)
	case routepolicy.AdminRequired:
		return g.authorizeAdmin(log, r)
	case routepolicy.UserRequired:
		return g.authorizeUser(log, r, d.Username)
	default:
		log.Error("unknown route class", slog.Int("class", int(d.Class)))
		return reject(http.StatusInternalServerError, MsgInternal)
	}
}

// checkToken выполняет общие для защищённых маршрутов проверки:
// наличие токена, срок действия и издателя.
func (g *gate) checkToken(log *slog.Logger, r *http.Request) (string, *outcome) {
	token := bearerToken(r)
	if token == "" {
		log.Warn("missing bearer token")
		res := reject(http.StatusUnauthorized, MsgTokenRequired)
		return "", &res
	}
	if g.tokens.IsExpired(token) {
		log.Warn("invalid or expired token")
		res := reject(http.StatusUnauthorized, MsgInvalidToken)
		return "", &res
	}
	ok, err := g.tokens.ValidateIssuer(token, g.issuer)
	if err != nil {
		log.Error("failed to validate issuer", sl.Err(err))
		res := reject(http.StatusInternalServerError, MsgInternal)
		return "", &res
	}
	if !ok {
		log.Warn("token issuer mismatch")
		res := reject(http.StatusForbidden, MsgBadIssuer)
		return "", &res
	}
	return token, nil
}

func (g *gate) authorizeAdmin(log *slog.Logger, r *http.Request) outcome {
	token, res := g.checkToken(log, r)
	if res != nil {
		return *res
	}
	ok, err := g.tokens.ValidateRole(token, models.RoleAdmin)
	if err != nil {
		log.Error("failed to validate role", sl.Err(err))
		return reject(http.StatusInternalServerError, MsgInternal)
	}
	if !ok {
		log.Warn("administrator role required")
		return reject(http.StatusForbidden, MsgAdminRequired)
	}
	claims, err := g.tokens.Parse(token)
	if err != nil {
		log.Error("token became unreadable after validation", sl.Err(err))
		return reject(http.StatusInternalServerError, MsgInternal)
	}
	return outcome{ctx: withPrincipal(r.Context(), claims.Username(), models.RoleAdmin, claims.Subject)}
}

func (g *gate) authorizeUser(log *slog.Logger, r *http.Request, target string) outcome {
	token, res := g.checkToken(log, r)
	if res != nil {
		return *res
	}
	claims, err := g.tokens.Parse(token)
	if err != nil {
		log.Error("token became unreadable after validation", sl.Err(err))
		return reject(http.StatusInternalServerError, MsgInternal)
	}
	role, err := claims.Role()
	if err != nil {
		log.Warn("token carries unknown role", sl.Err(err))
		return reject(http.StatusForbidden, MsgRoleNotAllowed)
	}

	username := strings.TrimSpace(claims.Username())
	switch role {
	case models.RoleAdmin:
	case models.RoleCliente:
		if username == "" || username != target {
			log.Warn("access to another user's data", slog.String("user", username), slog.String("target", target))
			return reject(http.StatusForbidden, MsgForeignUser)
		}
	default:
		return reject(http.StatusForbidden, MsgRoleNotAllowed)
	}
	return outcome{ctx: withPrincipal(r.Context(), username, role, claims.Subject)}
}

// bearerToken возвращает токен только для схемы Bearer, иначе пустую строку.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

func reject(status int, msg string) outcome {
	return outcome{status: status, message: msg}
}

func outcomeLabel(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "error"
	default:
		return fmt.Sprintf("status_%d", status)
	}
}

func withPrincipal(ctx context.Context, username string, role models.Role, subject string) context.Context {
	ctx = context.WithValue(ctx, User, username)
	ctx = context.WithValue(ctx, Role, role)
	return context.WithValue(ctx, Subject, subject)
}

// UsernameFrom возвращает имя пользователя, положенное шлюзом в контекст.
func UsernameFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(User).(string)
	return v, ok && v != ""
}

// RoleFrom возвращает роль, положенную шлюзом в контекст.
func RoleFrom(ctx context.Context) (models.Role, bool) {
	v, ok := ctx.Value(Role).(models.Role)
	return v, ok
}

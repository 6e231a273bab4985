// Package password реализует HTTP-обработчик смены пароля по коду восстановления.
package password

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/auth-service/internal/http/response"
	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
	services "github.com/magabrotheeeer/auth-service/internal/services/auth"
)

// Request новый пароль и код из письма.
type Request struct {
	Password string `json:"clave" validate:"required,min=6" example:"nuevaPassword123"`
	Code     string `json:"codigo" validate:"required,len=6" example:"AB12CD"`
}

// Service описывает бизнес-логику смены пароля.
type Service interface {
	ChangePassword(ctx context.Context, username, code, newPassword string) error
}

// Handler обрабатывает запросы смены пароля.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Смена пароля
// @Description Меняет пароль пользователя по одноразовому коду восстановления.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param usuario path string true "Имя пользователя"
// @Param request body Request true "Новый пароль и код"
// @Success 200 {object} response.Response "Пароль изменен"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 403 {object} response.ErrorResponse "Неверный или просроченный код"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /v1/usuarios/{usuario}/contrasena [patch]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.password"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	username := chi.URLParam(r, "usuario")

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	err := h.service.ChangePassword(r.Context(), username, req.Code, req.Password)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case errors.Is(err, services.ErrInvalidCode):
		log.Info("invalid recovery code", slog.String("usuario", username))
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("invalid or expired code"))
		return
	case err != nil:
		log.Error("failed to change password", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("password changed", slog.String("usuario", username))
	render.JSON(w, r, response.OK("password changed"))
}

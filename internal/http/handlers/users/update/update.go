// Package update реализует HTTP-обработчик частичного обновления профиля.
//
// Изменяются только переданные поля: почта, телефон и пароль.
package update

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
	"github.com/magabrotheeeer/auth-service/internal/models"
	services "github.com/magabrotheeeer/auth-service/internal/services/auth"
)

// Request поля для обновления, отсутствующие поля не меняются.
type Request struct {
	Email    *string `json:"correo" validate:"omitempty,email" example:"juan@email.com"`
	Phone    *string `json:"numeroTelefono" example:"+573001234567"`
	Password *string `json:"clave" validate:"omitempty,min=6" example:"password123"`
}

// Service описывает бизнес-логику обновления профиля.
type Service interface {
	UpdateUser(ctx context.Context, username string, in services.UpdateInput) (*models.User, error)
}

// Handler обрабатывает запросы обновления пользователя.
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
// @Summary Обновление профиля
// @Description Частично обновляет почту, телефон или пароль пользователя.
// @Tags Users
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param usuario path string true "Имя пользователя"
// @Param request body Request true "Изменяемые поля"
// @Success 200 {object} models.UserView "Обновленный пользователь"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 401 {object} response.ErrorResponse "Нет токена или токен недействителен"
// @Failure 403 {object} response.ErrorResponse "Доступ запрещен"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 409 {object} response.ErrorResponse "Почта уже используется"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /v1/usuarios/{usuario} [patch]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.update"

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

	user, err := h.service.UpdateUser(r.Context(), username, services.UpdateInput{
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, services.ErrNothingToUpdate):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("no fields to update"))
		return
	case errors.Is(err, services.ErrInvalidPhone):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid phone number"))
		return
	case errors.Is(err, services.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case errors.Is(err, services.ErrEmailInUse):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("email already in use"))
		return
	case err != nil:
		log.Error("failed to update user", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("user updated", slog.String("usuario", username))
	render.JSON(w, r, response.OK(user.View()))
}

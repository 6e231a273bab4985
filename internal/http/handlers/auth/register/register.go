// Package register реализует HTTP-обработчик регистрации пользователя.
//
// Обработчик декодирует и валидирует тело запроса, создает пользователя с ролью
// CLIENTE и сразу возвращает токен сессии.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/auth-service/internal/http/response"
	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
	services "github.com/magabrotheeeer/auth-service/internal/services/auth"
)

// Request входные данные регистрации.
type Request struct {
	Username string `json:"usuario" validate:"required,min=3,max=50" example:"juan123"`
	Email    string `json:"correo" validate:"required,email" example:"juan@email.com"`
	Password string `json:"clave" validate:"required,min=6" example:"password123"`
	Phone    string `json:"numeroTelefono" example:"+573001234567"`
}

// Service описывает бизнес-логику регистрации.
type Service interface {
	Register(ctx context.Context, in services.RegisterInput) (string, error)
}

// Handler обрабатывает HTTP-запросы регистрации.
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
// @Summary Регистрация пользователя
// @Description Создает пользователя с ролью CLIENTE и возвращает токен сессии.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные пользователя"
// @Success 201 {object} response.TokenResponse "Пользователь создан"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 409 {object} response.ErrorResponse "Пользователь или почта уже заняты"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /v1/usuarios [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	token, err := h.service.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	switch {
	case errors.Is(err, services.ErrUserExists):
		log.Info("user already exists", slog.String("usuario", req.Username))
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("user already exists"))
		return
	case errors.Is(err, services.ErrEmailInUse):
		log.Info("email already in use", slog.String("usuario", req.Username))
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("email already in use"))
		return
	case errors.Is(err, services.ErrInvalidPhone):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid phone number"))
		return
	case err != nil:
		log.Error("failed to register user", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("user registered", slog.String("usuario", req.Username))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OK(response.TokenResponse{Token: token}))
}

// Package list реализует HTTP-обработчик постраничного списка пользователей.
//
// Страницы нумеруются с нуля, на странице не больше десяти пользователей,
// отсортированных по имени. Доступен только администраторам.
package list

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/auth-service/internal/http/response"
	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
	"github.com/magabrotheeeer/auth-service/internal/models"
	services "github.com/magabrotheeeer/auth-service/internal/services/auth"
)

// Handler обрабатывает запросы списка пользователей.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс получения страницы пользователей.
type Service interface {
	ListUsers(ctx context.Context, page int) ([]*models.User, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список пользователей
// @Description Возвращает страницу пользователей, отсортированных по имени.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param pagina query int false "Номер страницы, начиная с 0"
// @Success 200 {array} models.UserView "Пользователи"
// @Failure 400 {object} response.ErrorResponse "Некорректный номер страницы"
// @Failure 401 {object} response.ErrorResponse "Нет токена или токен недействителен"
// @Failure 403 {object} response.ErrorResponse "Требуется роль ADMIN"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /v1/usuarios [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	page := 0
	if raw := r.URL.Query().Get("pagina"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			log.Info("invalid page parameter", slog.String("pagina", raw))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid page"))
			return
		}
		page = p
	}

	users, err := h.service.ListUsers(r.Context(), page)
	if errors.Is(err, services.ErrInvalidPage) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid page"))
		return
	}
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	log.Info("users listed", slog.Int("pagina", page), slog.Int("count", len(views)))
	render.JSON(w, r, response.OK(views))
}

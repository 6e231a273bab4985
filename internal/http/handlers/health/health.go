// Package health реализует HTTP-обработчики проверок состояния сервиса.
package health

import (
	"context"
	"net/http"

	"github.com/go-chi/render"

	healthsvc "github.com/magabrotheeeer/auth-service/internal/services/health"
)

// Service описывает источник отчетов о состоянии.
type Service interface {
	Health(ctx context.Context) healthsvc.Report
	Ready(ctx context.Context) healthsvc.Report
	Live(ctx context.Context) healthsvc.Report
}

// Handler обрабатывает /health, /health/ready и /health/live.
type Handler struct {
	service Service
}

// New создает новый Handler.
func New(service Service) *Handler {
	return &Handler{service: service}
}

// Health godoc
// @Summary Состояние сервиса
// @Tags Health
// @Produce  json
// @Success 200 {object} healthsvc.Report
// @Failure 503 {object} healthsvc.Report
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	write(w, r, h.service.Health(r.Context()))
}

// Ready godoc
// @Summary Готовность принимать трафик
// @Tags Health
// @Produce  json
// @Success 200 {object} healthsvc.Report
// @Failure 503 {object} healthsvc.Report
// @Router /health/ready [get]
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	write(w, r, h.service.Ready(r.Context()))
}

// Live godoc
// @Summary Процесс жив
// @Tags Health
// @Produce  json
// @Success 200 {object} healthsvc.Report
// @Router /health/live [get]
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	write(w, r, h.service.Live(r.Context()))
}

func write(w http.ResponseWriter, r *http.Request, report healthsvc.Report) {
	if !report.Up() {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, report)
}

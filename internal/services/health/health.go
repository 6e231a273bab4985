// Package health собирает состояние зависимостей сервиса для эндпоинтов
// /health, /health/ready и /health/live.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
)

// Статусы проверок.
const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

const checkTimeout = 2 * time.Second

// Pinger зависимость, доступность которой проверяется запросом.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionState соединение, которое сообщает о своём закрытии.
type ConnectionState interface {
	IsClosed() bool
}

// Check результат одной проверки.
type Check struct {
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// Report сводный результат.
type Report struct {
	Status string  `json:"status"`
	Checks []Check `json:"checks"`
}

// Up сообщает, что все проверки прошли.
func (r Report) Up() bool {
	return r.Status == StatusUp
}

// Service выполняет проверки зависимостей.
type Service struct {
	db      Pinger
	cache   Pinger
	broker  ConnectionState
	log     *slog.Logger
	name    string
	started time.Time
	now     func() time.Time
}

// NewService создает сервис проверок. Любая из зависимостей может быть nil,
// тогда соответствующая проверка считается неуспешной.
func NewService(log *slog.Logger, name string, db Pinger, cache Pinger, broker ConnectionState) *Service {
	return &Service{
		db:      db,
		cache:   cache,
		broker:  broker,
		log:     log,
		name:    name,
		started: time.Now(),
		now:     time.Now,
	}
}

// Health проверяет все зависимости.
func (s *Service) Health(ctx context.Context) Report {
	checks := []Check{
		s.ping(ctx, "database", "postgresql", s.db),
		s.checkBroker(),
		s.ping(ctx, "redis", "redis", s.cache),
		s.application(),
	}
	return aggregate(checks)
}

// Ready готовность принимать трафик определяется доступностью базы данных.
func (s *Service) Ready(ctx context.Context) Report {
	db := s.ping(ctx, "database", "postgresql", s.db)
	return aggregate([]Check{{
		Name:   "Readiness check",
		Status: db.Status,
		Data:   map[string]any{"from": db.Data["from"], "status": "READY"},
	}})
}

// Live процесс жив, пока отвечает.
func (s *Service) Live(_ context.Context) Report {
	app := s.application()
	return aggregate([]Check{{
		Name:   "Liveness check",
		Status: app.Status,
		Data:   map[string]any{"from": app.Data["from"], "status": "ALIVE"},
	}})
}

func (s *Service) ping(ctx context.Context, name, from string, p Pinger) Check {
	c := Check{Name: name, Status: StatusUp, Data: map[string]any{"from": from}}
	if p == nil {
		c.Status = StatusDown
		return c
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		s.log.Warn("health check failed", slog.String("check", name), sl.Err(err))
		c.Status = StatusDown
	}
	return c
}

func (s *Service) checkBroker() Check {
	c := Check{Name: "rabbitmq", Status: StatusUp, Data: map[string]any{"from": "rabbitmq"}}
	if s.broker == nil || s.broker.IsClosed() {
		s.log.Warn("health check failed", slog.String("check", c.Name))
		c.Status = StatusDown
	}
	return c
}

func (s *Service) application() Check {
	return Check{
		Name:   "application",
		Status: StatusUp,
		Data: map[string]any{
			"from":   s.name,
			"uptime": s.now().Sub(s.started).Truncate(time.Second).String(),
		},
	}
}

func aggregate(checks []Check) Report {
	status := StatusUp
	for _, c := range checks {
		if c.Status != StatusUp {
			status = StatusDown
			break
		}
	}
	return Report{Status: status, Checks: checks}
}

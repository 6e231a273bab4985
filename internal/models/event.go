package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionType тип доменного события.
type ActionType string

// Типы событий сервиса авторизации.
const (
	ActionUserRegistered   ActionType = "REGISTRO_USUARIO"
	ActionAuthenticated    ActionType = "AUTENTICACION"
	ActionPasswordRecovery ActionType = "RECUPERAR_PASSWORD"
	ActionPasswordChanged  ActionType = "AUTENTICACION_CLAVES"
)

// RoutingKey возвращает ключ маршрутизации для topic exchange.
func (a ActionType) RoutingKey() string {
	switch a {
	case ActionUserRegistered:
		return "auth.registered"
	case ActionAuthenticated:
		return "auth.login"
	case ActionPasswordRecovery:
		return "auth.password_recovery"
	case ActionPasswordChanged:
		return "auth.key_auth"
	default:
		return "auth.unknown"
	}
}

// DomainEvent событие, публикуемое в брокер после каждого действия.
type DomainEvent struct {
	ID        uuid.UUID      `json:"id"`
	Action    ActionType     `json:"tipoAccion"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewDomainEvent создаёт событие с новым идентификатором.
func NewDomainEvent(action ActionType, payload map[string]any, now time.Time) DomainEvent {
	return DomainEvent{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: now.UTC(),
		Payload:   payload,
	}
}

// RecoveryCodeMessage задание на отправку кода восстановления по почте.
type RecoveryCodeMessage struct {
	Username  string    `json:"usuario"`
	Email     string    `json:"correo"`
	Code      string    `json:"codigo"`
	ExpiresAt time.Time `json:"expiraEn"`
}

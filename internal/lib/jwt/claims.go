// Package jwt реализует выпуск и проверку подписанных токенов сессии.
//
// Maker определяет двухуровневый интерфейс: Parse и Verify возвращают
// типизированные ошибки, а Validate* сравнивают поля токена и
// превращают в false только ErrInvalidToken.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/auth-service/internal/models"
)

// Имена claim полей, которые сервис кладёт в каждый токен.
const (
	ClaimUsername = "usuario"
	ClaimRole     = "rol"
	ClaimEmail    = "correo"
)

var (
	// ErrInvalidToken токен пустой, повреждён или подпись не сходится.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken срок действия токена истёк или не указан.
	ErrExpiredToken = errors.New("token is expired")
	// ErrMissingSecret не задан секрет подписи.
	ErrMissingSecret = errors.New("jwt secret key is required")
	// ErrMissingIssuer не задан издатель токенов.
	ErrMissingIssuer = errors.New("jwt issuer is required")
)

// Maker описывает интерфейс для выпуска и проверки токенов.
type Maker interface {
	// Issue подписывает токен для subject с дополнительными claim полями.
	Issue(subject string, claims map[string]any) (string, error)
	// Parse проверяет подпись и структуру, срок действия не проверяется.
	Parse(token string) (*Claims, error)
	// Verify то же, что Parse, плюс проверка срока действия.
	Verify(token string) (*Claims, error)
	// IsExpired возвращает true для истёкших и для любых неразбираемых токенов.
	IsExpired(token string) bool
	GetClaim(token, key string) (any, bool, error)
	ValidateIssuer(token, issuer string) (bool, error)
	ValidateSubject(token, subject string) (bool, error)
	ValidateRole(token string, role models.Role) (bool, error)
	RoleOf(token string) (models.Role, error)
}

// Settings неизменяемые параметры подписи, создаются один раз при старте.
type Settings struct {
	SecretKey string           // Секретный ключ HMAC
	Issuer    string           // Издатель, проверяется при каждом использовании
	TTL       time.Duration    // Время жизни токена, по умолчанию час
	Now       func() time.Time // Часы, nil означает time.Now
}

// MakerImpl реализует Maker поверх HS256.
type MakerImpl struct {
	secretKey []byte
	issuer    string
	tokenTTL  time.Duration
	now       func() time.Time
}

// DefaultTTL время жизни токена, если в настройках не задано другое.
const DefaultTTL = time.Hour

// NewJWTMaker проверяет настройки и создаёт MakerImpl.
func NewJWTMaker(s Settings) (*MakerImpl, error) {
	const op = "jwt.NewJWTMaker"

	if strings.TrimSpace(s.SecretKey) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingSecret)
	}
	if strings.TrimSpace(s.Issuer) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingIssuer)
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return &MakerImpl{
		secretKey: []byte(s.SecretKey),
		issuer:    strings.TrimSpace(s.Issuer),
		tokenTTL:  ttl,
		now:       now,
	}, nil
}

// Issuer возвращает издателя, которым подписываются токены.
func (j *MakerImpl) Issuer() string {
	return j.issuer
}

// Claims разобранное содержимое токена.
type Claims struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time      // Нулевое значение, если exp отсутствует
	Values    map[string]any // Пользовательские claim поля без зарегистрированных
}

// Username значение claim "usuario" или пустая строка.
func (c *Claims) Username() string {
	return c.stringValue(ClaimUsername)
}

// Email значение claim "correo" или пустая строка.
func (c *Claims) Email() string {
	return c.stringValue(ClaimEmail)
}

// Role разбирает claim "rol". Неизвестные роли отклоняются.
func (c *Claims) Role() (models.Role, error) {
	return models.ParseRole(strings.TrimSpace(c.stringValue(ClaimRole)))
}

func (c *Claims) stringValue(key string) string {
	s, _ := c.Values[key].(string)
	return s
}

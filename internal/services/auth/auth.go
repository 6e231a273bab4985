// Package services содержит логику бизнес-уровня для работы с пользователями и аутентификацией.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"

	"github.com/magabrotheeeer/auth-service/internal/lib/jwt"
	"github.com/magabrotheeeer/auth-service/internal/lib/password"
	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
	"github.com/magabrotheeeer/auth-service/internal/metrics"
	"github.com/magabrotheeeer/auth-service/internal/models"
	"github.com/magabrotheeeer/auth-service/internal/storage"
)

// PageSize количество пользователей на одной странице списка.
const PageSize = 10

// DefaultRegion регион для разбора номеров телефона без кода страны.
const DefaultRegion = "CO"

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid or expired recovery code")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidPage        = errors.New("page must not be negative")
	ErrNothingToUpdate    = errors.New("no fields to update")
	ErrInvalidPhone       = errors.New("invalid phone number")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	UpdateUser(ctx context.Context, username string, upd models.UserUpdate) (*models.User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	DeleteUser(ctx context.Context, username string) error
}

// TokenIssuer выпускает токены сессии.
type TokenIssuer interface {
	Issue(subject string, claims map[string]any) (string, error)
}

// CodeStore хранит коды восстановления пароля.
type CodeStore interface {
	SaveRecoveryCode(ctx context.Context, username, code string, ttl time.Duration) error
	RecoveryCode(ctx context.Context, username string) (string, bool, error)
	DeleteRecoveryCode(ctx context.Context, username string) error
}

// EventPublisher отправляет доменные события и задания на отправку писем.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.DomainEvent) error
	SendRecoveryCode(ctx context.Context, msg models.RecoveryCodeMessage) error
}

// RegisterInput данные для регистрации.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Phone    string
}

// UpdateInput частичное обновление профиля. Поля со значением nil не меняются.
type UpdateInput struct {
	Email    *string
	Phone    *string
	Password *string
}

// AuthService отвечает за регистрацию, вход, восстановление пароля и управление пользователями.
type AuthService struct {
	users   UserRepository
	tokens  TokenIssuer
	codes   CodeStore
	events  EventPublisher
	log     *slog.Logger
	metrics *metrics.Metrics
	codeTTL time.Duration
	now     func() time.Time
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(
	users UserRepository,
	tokens TokenIssuer,
	codes CodeStore,
	events EventPublisher,
	log *slog.Logger,
	m *metrics.Metrics,
	codeTTL time.Duration,
) *AuthService {
	if codeTTL <= 0 {
		codeTTL = 15 * time.Minute
	}
	return &AuthService{
		users:   users,
		tokens:  tokens,
		codes:   codes,
		events:  events,
		log:     log,
		metrics: m,
		codeTTL: codeTTL,
		now:     time.Now,
	}
}

// SetClock подменяет часы сервиса.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// Register создает пользователя с ролью CLIENTE и возвращает токен сессии.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, error) {
	const op = "services.auth.Register"

	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	hashed, err := password.GetHash(in.Password)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	user := models.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hashed,
		Phone:        phone,
		Role:         models.RoleCliente,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("%s: %w", op, mapStorageError(err))
	}

	token, err := s.issueToken(&user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.emit(ctx, models.ActionUserRegistered, map[string]any{
		"usuario": user.Username,
		"correo":  user.Email,
	})
	return token, nil
}

// Login проверяет пароль и возвращает токен. identifier может быть
// именем пользователя или почтой.
func (s *AuthService) Login(ctx context.Context, identifier, rawPassword string) (string, error) {
	const op = "services.auth.Login"

	identifier = strings.TrimSpace(identifier)
	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetUserByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetUserByUsername(ctx, identifier)
	}
	if errors.Is(err, storage.ErrUserNotFound) {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.emit(ctx, models.ActionAuthenticated, map[string]any{
		"usuario": user.Username,
	})
	return token, nil
}

// RequestRecoveryCode создает новый код восстановления и ставит письмо в очередь.
// Предыдущий код пользователя перестает действовать.
func (s *AuthService) RequestRecoveryCode(ctx context.Context, username string) error {
	const op = "services.auth.RequestRecoveryCode"

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapStorageError(err))
	}
	code, err := password.NewRecoveryCode()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.codes.SaveRecoveryCode(ctx, user.Username, code, s.codeTTL); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := models.RecoveryCodeMessage{
		Username:  user.Username,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: s.now().Add(s.codeTTL).UTC(),
	}
	if err := s.events.SendRecoveryCode(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.emit(ctx, models.ActionPasswordRecovery, map[string]any{
		"usuario": user.Username,
	})
	return nil
}

// ChangePassword меняет пароль по коду восстановления. Код одноразовый.
func (s *AuthService) ChangePassword(ctx context.Context, username, code, newPassword string) error {
	const op = "services.auth.ChangePassword"

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapStorageError(err))
	}
	stored, found, err := s.codes.RecoveryCode(ctx, user.Username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found || stored != strings.ToUpper(strings.TrimSpace(code)) {
		return fmt.Errorf("%s: %w", op, ErrInvalidCode)
	}

	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, user.Username, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, mapStorageError(err))
	}
	if err := s.codes.DeleteRecoveryCode(ctx, user.Username); err != nil {
		s.log.Warn("failed to delete used recovery code", slog.String("usuario", user.Username), sl.Err(err))
	}
	s.emit(ctx, models.ActionPasswordChanged, map[string]any{
		"usuario": user.Username,
	})
	return nil
}

// GetUser возвращает пользователя по имени.
func (s *AuthService) GetUser(ctx context.Context, username string) (*models.User, error) {
	const op = "services.auth.GetUser"

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStorageError(err))
	}
	return user, nil
}

// UpdateUser применяет частичное обновление профиля. Все поля,
// включая новый пароль, сохраняются одной записью.
func (s *AuthService) UpdateUser(ctx context.Context, username string, in UpdateInput) (*models.User, error) {
	const op = "services.auth.UpdateUser"

	if in.Email == nil && in.Phone == nil && in.Password == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNothingToUpdate)
	}

	upd := models.UserUpdate{}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		upd.Email = &email
	}
	if in.Phone != nil {
		phone, err := NormalizePhone(*in.Phone)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		upd.Phone = &phone
	}

	if in.Password != nil {
		hashed, err := password.GetHash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		upd.PasswordHash = &hashed
	}

	user, err := s.users.UpdateUser(ctx, username, upd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStorageError(err))
	}
	return user, nil
}

// ListUsers возвращает страницу пользователей, отсортированных по имени.
// Нумерация страниц начинается с нуля.
func (s *AuthService) ListUsers(ctx context.Context, page int) ([]*models.User, error) {
	const op = "services.auth.ListUsers"

	if page < 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPage)
	}
	users, err := s.users.ListUsers(ctx, PageSize, page*PageSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// DeleteUser удаляет пользователя.
func (s *AuthService) DeleteUser(ctx context.Context, username string) error {
	const op = "services.auth.DeleteUser"

	if err := s.users.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("%s: %w", op, mapStorageError(err))
	}
	if err := s.codes.DeleteRecoveryCode(ctx, username); err != nil {
		s.log.Warn("failed to delete recovery code of removed user", slog.String("usuario", username), sl.Err(err))
	}
	return nil
}

// EnsureAdmin создает администратора, если пользователя с таким именем еще нет.
// Повторный вызов ничего не меняет.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, rawPassword string) error {
	const op = "services.auth.EnsureAdmin"

	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = s.users.CreateUser(ctx, models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		Role:         models.RoleAdmin,
	})
	if errors.Is(err, storage.ErrUserExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapStorageError(err))
	}
	s.log.Info("admin user created", slog.String("usuario", username))
	return nil
}

// NormalizePhone приводит номер к формату E.164. Пустая строка допустима.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, DefaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (s *AuthService) issueToken(user *models.User) (string, error) {
	token, err := s.tokens.Issue(user.Email, map[string]any{
		jwt.ClaimUsername: user.Username,
		jwt.ClaimRole:     user.Role.String(),
		jwt.ClaimEmail:    user.Email,
	})
	if err != nil {
		return "", err
	}
	s.metrics.TokenIssued()
	return token, nil
}

// emit публикует событие. Ошибки брокера уже залогированы публикатором
// и не влияют на результат операции.
func (s *AuthService) emit(ctx context.Context, action models.ActionType, payload map[string]any) {
	_ = s.events.PublishEvent(ctx, models.NewDomainEvent(action, payload, s.now()))
}

func mapStorageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, storage.ErrUserExists):
		return ErrUserExists
	case errors.Is(err, storage.ErrEmailTaken):
		return ErrEmailInUse
	default:
		return err
	}
}

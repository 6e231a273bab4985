package middlewarectx

import (
	"github.com/magabrotheeeer/auth-service/internal/http/routepolicy"
	"github.com/magabrotheeeer/auth-service/internal/lib/jwt"
	"github.com/magabrotheeeer/auth-service/internal/models"
)

// TokenValidator описывает операции кодека токенов, нужные шлюзу.
type TokenValidator interface {
	IsExpired(token string) bool
	ValidateIssuer(token, issuer string) (bool, error)
	ValidateRole(token string, role models.Role) (bool, error)
	Parse(token string) (*jwt.Claims, error)
}

// Classifier определяет уровень доступа маршрута.
type Classifier interface {
	Classify(method, path string) routepolicy.Decision
}

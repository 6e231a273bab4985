package middlewarectx_test

import (
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/auth-service/internal/lib/jwt"
	"github.com/magabrotheeeer/auth-service/internal/models"
)

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) IsExpired(token string) bool {
	args := m.Called(token)
	return args.Bool(0)
}

func (m *TokenValidatorMock) ValidateIssuer(token, issuer string) (bool, error) {
	args := m.Called(token, issuer)
	return args.Bool(0), args.Error(1)
}

func (m *TokenValidatorMock) ValidateRole(token string, role models.Role) (bool, error) {
	args := m.Called(token, role)
	return args.Bool(0), args.Error(1)
}

func (m *TokenValidatorMock) Parse(token string) (*jwt.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*jwt.Claims)
	return claims, args.Error(1)
}

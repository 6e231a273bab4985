package models

import (
	"errors"
	"fmt"
)

// Role роль пользователя. Набор значений закрыт.
type Role string

// Допустимые роли.
const (
	RoleAdmin   Role = "ADMIN"
	RoleCliente Role = "CLIENTE"
)

// ErrUnknownRole возвращается для строки, не совпадающей ни с одной ролью.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole разбирает роль с точным совпадением регистра.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleCliente:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Valid сообщает, входит ли значение в набор ролей.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCliente
}

func (r Role) String() string {
	return string(r)
}

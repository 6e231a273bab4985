// Package password хэширует пароли пользователей и выдаёт одноразовые
// коды восстановления.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GetHash возвращает bcrypt хэш пароля со стоимостью по умолчанию.
// Пароль длиннее 72 байт отклоняется bcrypt.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash возвращает nil, если password соответствует hash.
func CompareHash(hash, password string) error {
	const op = "password.CompareHash"

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

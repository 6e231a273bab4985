package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// CodeLength длина кода восстановления пароля.
	CodeLength = 6
)

// NewRecoveryCode возвращает одноразовый код из заглавных латинских букв и цифр.
func NewRecoveryCode() (string, error) {
	const op = "password.NewRecoveryCode"

	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

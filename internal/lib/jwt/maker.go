package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/auth-service/internal/models"
)

const bearerPrefix = "Bearer "

var registered = map[string]struct{}{
	"sub": {}, "iss": {}, "iat": {}, "exp": {}, "nbf": {}, "aud": {}, "jti": {},
}

// Issue создает токен HS256 для subject. Зарегистрированные поля
// (sub, iss, iat, exp) всегда берутся из настроек и перекрывают claims.
// iat и exp хранятся с точностью до секунды: время выпуска усекается,
// а exp равен ровно iat плюс TTL.
func (j *MakerImpl) Issue(subject string, claims map[string]any) (string, error) {
	const op = "jwt.Issue"

	now := j.now().Truncate(time.Second)
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["sub"] = subject
	mc["iss"] = j.issuer
	mc["iat"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(now.Add(j.tokenTTL))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// Parse проверяет подпись и структуру токена. Префикс "Bearer " допускается.
// Все ошибки оборачивают ErrInvalidToken.
func (j *MakerImpl) Parse(tokenStr string) (*Claims, error) {
	const op = "jwt.Parse"

	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenStr), bearerPrefix))
	if raw == "" {
		return nil, fmt.Errorf("%s: %w: empty token", op, ErrInvalidToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	mc := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(raw, mc, func(_ *jwt.Token) (any, error) {
		return j.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, err := toClaims(mc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}
	return claims, nil
}

func toClaims(mc jwt.MapClaims) (*Claims, error) {
	sub, err := mc.GetSubject()
	if err != nil {
		return nil, err
	}
	iss, err := mc.GetIssuer()
	if err != nil {
		return nil, err
	}
	c := &Claims{Subject: sub, Issuer: iss, Values: make(map[string]any, len(mc))}

	iat, err := mc.GetIssuedAt()
	if err != nil {
		return nil, err
	}
	if iat != nil {
		c.IssuedAt = iat.Time
	}
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
	}

	for k, v := range mc {
		if _, ok := registered[k]; ok {
			continue
		}
		c.Values[k] = v
	}
	return c, nil
}

// Verify разбирает токен и дополнительно проверяет срок действия.
func (j *MakerImpl) Verify(tokenStr string) (*Claims, error) {
	const op = "jwt.Verify"

	claims, err := j.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if j.expired(claims) {
		return nil, fmt.Errorf("%s: %w", op, ErrExpiredToken)
	}
	return claims, nil
}

// IsExpired никогда не паникует: пустой, поврежденный токен
// или токен без exp считается истёкшим.
func (j *MakerImpl) IsExpired(tokenStr string) bool {
	claims, err := j.Parse(tokenStr)
	if err != nil {
		return true
	}
	return j.expired(claims)
}

func (j *MakerImpl) expired(c *Claims) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !j.now().Before(c.ExpiresAt)
}

// GetClaim возвращает значение claim поля key. Ошибка означает
// невалидный токен, отсутствие поля сообщается через present=false.
func (j *MakerImpl) GetClaim(tokenStr, key string) (any, bool, error) {
	claims, err := j.Parse(tokenStr)
	if err != nil {
		return nil, false, err
	}
	switch key {
	case "sub":
		return claims.Subject, claims.Subject != "", nil
	case "iss":
		return claims.Issuer, claims.Issuer != "", nil
	}
	v, ok := claims.Values[key]
	return v, ok, nil
}

// ValidateIssuer сравнивает издателя токена с issuer после обрезки пробелов.
func (j *MakerImpl) ValidateIssuer(tokenStr, issuer string) (bool, error) {
	claims, err := j.Parse(tokenStr)
	if err != nil {
		return rejectInvalid(err)
	}
	return strings.TrimSpace(claims.Issuer) == strings.TrimSpace(issuer), nil
}

// ValidateSubject сравнивает subject токена с subject после обрезки пробелов.
func (j *MakerImpl) ValidateSubject(tokenStr, subject string) (bool, error) {
	claims, err := j.Parse(tokenStr)
	if err != nil {
		return rejectInvalid(err)
	}
	return strings.TrimSpace(claims.Subject) == strings.TrimSpace(subject), nil
}

// ValidateRole проверяет точное совпадение роли из токена с role.
func (j *MakerImpl) ValidateRole(tokenStr string, role models.Role) (bool, error) {
	claims, err := j.Parse(tokenStr)
	if err != nil {
		return rejectInvalid(err)
	}
	got, err := claims.Role()
	if err != nil {
		return false, nil
	}
	return got == role, nil
}

// RoleOf возвращает роль из токена. Для неизвестной роли
// возвращается ошибка, оборачивающая models.ErrUnknownRole.
func (j *MakerImpl) RoleOf(tokenStr string) (models.Role, error) {
	const op = "jwt.RoleOf"

	claims, err := j.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	role, err := claims.Role()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return role, nil
}

func rejectInvalid(err error) (bool, error) {
	if errors.Is(err, ErrInvalidToken) {
		return false, nil
	}
	return false, err
}

// Package routepolicy классифицирует HTTP запросы по требуемому уровню доступа.
//
// Таблица правил неизменяема после создания Policy и проверяется в фиксированном
// порядке: документация, публичные маршруты, маршруты администратора,
// маршруты пользователя. Первое совпадение побеждает.
package routepolicy

import (
	"net/http"
	"strings"
)

// Class уровень доступа, требуемый маршрутом.
type Class int

// Уровни доступа.
const (
	Public Class = iota
	AdminRequired
	UserRequired
	Denied
)

func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	case AdminRequired:
		return "admin"
	case UserRequired:
		return "user"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decision результат классификации. Username заполняется
// для маршрутов пользователя из сегмента пути.
type Decision struct {
	Class    Class
	Username string
}

// Rule правило таблицы. В Pattern сегмент "{usuario}" совпадает
// с любым непустым сегментом пути.
type Rule struct {
	Method  string
	Pattern string
	Class   Class
}

const usernameParam = "{usuario}"

// DocPrefixes префиксы документации, всегда публичные.
var DocPrefixes = []string{"/v3/api-docs", "/swagger-ui"}

// DefaultRules таблица правил сервиса в порядке приоритета.
var DefaultRules = []Rule{
	{Method: http.MethodPost, Pattern: "/v1/usuarios", Class: Public},
	{Method: http.MethodPost, Pattern: "/v1/sesiones", Class: Public},
	{Method: http.MethodPost, Pattern: "/v1/codigos", Class: Public},
	{Method: http.MethodPatch, Pattern: "/v1/usuarios/{usuario}/contrasena", Class: Public},

	{Method: http.MethodGet, Pattern: "/v1/usuarios", Class: AdminRequired},
	{Method: http.MethodDelete, Pattern: "/v1/usuarios/{usuario}", Class: AdminRequired},

	{Method: http.MethodGet, Pattern: "/v1/usuarios/{usuario}", Class: UserRequired},
	{Method: http.MethodPatch, Pattern: "/v1/usuarios/{usuario}", Class: UserRequired},
}

// Policy классификатор маршрутов.
type Policy struct {
	docPrefixes []string
	rules       []compiledRule
	fallback    Class
}

type compiledRule struct {
	method   string
	segments []string
	class    Class
}

// New создает Policy. fallback применяется к маршрутам вне таблицы.
func New(rules []Rule, fallback Class) *Policy {
	p := &Policy{
		docPrefixes: append([]string(nil), DocPrefixes...),
		rules:       make([]compiledRule, 0, len(rules)),
		fallback:    fallback,
	}
	for _, r := range rules {
		p.rules = append(p.rules, compiledRule{
			method:   strings.ToUpper(r.Method),
			segments: split(NormalizePath(r.Pattern)),
			class:    r.Class,
		})
	}
	return p
}

// Default создает Policy со стандартной таблицей.
func Default(fallback Class) *Policy {
	return New(DefaultRules, fallback)
}

// Classify определяет уровень доступа для запроса.
func (p *Policy) Classify(method, path string) Decision {
	for _, prefix := range p.docPrefixes {
		if strings.HasPrefix(path, prefix) {
			return Decision{Class: Public}
		}
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	segments := split(NormalizePath(path))

	for _, r := range p.rules {
		if r.method != method {
			continue
		}
		if username, ok := match(r.segments, segments); ok {
			d := Decision{Class: r.class}
			if r.class == UserRequired {
				d.Username = username
			}
			return d
		}
	}
	return Decision{Class: p.fallback}
}

// NormalizePath схлопывает повторные слэши и убирает завершающий слэш,
// кроме корня.
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	var b strings.Builder
	b.Grow(len(path) + 1)
	if path[0] != '/' {
		b.WriteByte('/')
	}
	prevSlash := false
	for i := 0; i < len(path); i++ {
		ch := path[i]
		if ch == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(ch)
	}
	out := b.String()
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

func split(path string) []string {
	if path == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

func match(pattern, segments []string) (string, bool) {
	if len(pattern) != len(segments) {
		return "", false
	}
	var username string
	for i, p := range pattern {
		if p == usernameParam {
			if segments[i] == "" {
				return "", false
			}
			username = segments[i]
			continue
		}
		if p != segments[i] {
			return "", false
		}
	}
	return username, true
}

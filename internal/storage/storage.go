// Package storage объявляет ошибки уровня хранилища, общие для репозиториев.
package storage

import "errors"

var (
	// ErrUserNotFound пользователь с таким именем или почтой не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists имя пользователя уже занято.
	ErrUserExists = errors.New("user already exists")
	// ErrEmailTaken почта уже используется другим пользователем.
	ErrEmailTaken = errors.New("email already in use")
)

// Package models содержит доменную модель пользователя системы,
// включающую данные учётной записи, хэш пароля и роль.
// Структура используется в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
type User struct {
	Username     string    // Имя пользователя (первичный ключ)
	Email        string    // Электронная почта (уникальная)
	PasswordHash string    // Хэш пароля пользователя
	Phone        string    // Номер телефона в формате E.164
	Role         Role      // Роль пользователя, ADMIN или CLIENTE
	CreatedAt    time.Time // Дата регистрации
}

// UserUpdate описывает частичное обновление профиля.
// Поля со значением nil не изменяются.
type UserUpdate struct {
	Email        *string
	Phone        *string
	PasswordHash *string
}

// Empty сообщает, что обновление не содержит ни одного поля.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.Phone == nil && u.PasswordHash == nil
}

// UserView публичное представление пользователя без секретов.
type UserView struct {
	Username string `json:"usuario"`
	Email    string `json:"correo"`
	Phone    string `json:"numeroTelefono"`
	Role     Role   `json:"rol"`
}

// View возвращает публичное представление пользователя.
func (u *User) View() UserView {
	return UserView{
		Username: u.Username,
		Email:    u.Email,
		Phone:    u.Phone,
		Role:     u.Role,
	}
}

// Package smtp предоставляет интерфейсы и транспорт для отправки почты по SMTP.
package smtp

import (
	"errors"
	"io"
)

// ErrNoStartTLS сервер не предлагает STARTTLS.
var ErrNoStartTLS = errors.New("smtp server does not support STARTTLS")

// Client интерфейс для SMTP клиента.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface открывает сессии и знает адрес отправителя.
type TransportInterface interface {
	Connect() (Client, error)
	Sender() string
}

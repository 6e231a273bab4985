package smtp

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/magabrotheeeer/auth-service/internal/config"
	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
)

const dialTimeout = 10 * time.Second

// Transport открывает SMTP сессии к серверу из конфига.
// Соединение всегда переводится в TLS через STARTTLS.
type Transport struct {
	cfg  config.SMTP
	addr string
	log  *slog.Logger
}

type session struct {
	c *smtp.Client
}

func (s *session) Mail(from string) error { return s.c.Mail(from) }

func (s *session) Rcpt(to string) error { return s.c.Rcpt(to) }

func (s *session) Data() (io.WriteCloser, error) { return s.c.Data() }

func (s *session) Quit() error { return s.c.Quit() }

func (s *session) Close() error { return s.c.Close() }

// NewTransport создает Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return &Transport{
		cfg:  cfg,
		addr: addr,
		log:  log.With(slog.String("smtp_addr", addr)),
	}
}

// Connect открывает сессию: соединение, STARTTLS и, если задан
// пользователь, аутентификация PLAIN.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"

	conn, err := net.DialTimeout("tcp", t.addr, dialTimeout)
	if err != nil {
		t.log.Error("failed to dial SMTP server", sl.Err(err))
		return nil, fmt.Errorf("%s: failed to dial SMTP server: %w", op, err)
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		t.log.Error("failed to read SMTP greeting", sl.Err(err))
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = t.handshake(c); err != nil {
		t.log.Error("SMTP handshake failed", sl.Err(err))
		if closeErr := c.Close(); closeErr != nil {
			t.log.Error("failed to close SMTP client", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session{c: c}, nil
}

func (t *Transport) handshake(c *smtp.Client) error {
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return ErrNoStartTLS
	}
	if err := c.StartTLS(&tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if t.cfg.User == "" {
		return nil
	}
	if err := c.Auth(smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// Sender адрес отправителя: From из конфига, иначе пользователь SMTP.
func (t *Transport) Sender() string {
	if t.cfg.From != "" {
		return t.cfg.From
	}
	return t.cfg.User
}

package smtp

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/auth-service/internal/config"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// startPlainServer поднимает SMTP сервер, не объявляющий STARTTLS.
func startPlainServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("220 localhost ESMTP\r\n"))
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"):
				_, _ = conn.Write([]byte("250-localhost\r\n250 8BITMIME\r\n"))
			case strings.HasPrefix(line, "QUIT"):
				_, _ = conn.Write([]byte("221 bye\r\n"))
				return
			default:
				_, _ = conn.Write([]byte("502 not implemented\r\n"))
			}
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func TestTransport_RequiresStartTLS(t *testing.T) {
	host, port := startPlainServer(t)
	tr := NewTransport(config.SMTP{Host: host, Port: port, User: "u", Pass: "p"}, newNoopLogger())

	client, err := tr.Connect()
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrNoStartTLS)
}

func TestTransport_DialError(t *testing.T) {
	tr := NewTransport(config.SMTP{Host: "127.0.0.1", Port: 1}, newNoopLogger())

	_, err := tr.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dial SMTP server")
}

func TestTransport_Sender(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SMTP
		want string
	}{
		{name: "user only", cfg: config.SMTP{User: "user@mail"}, want: "user@mail"},
		{name: "from wins", cfg: config.SMTP{User: "user@mail", From: "noreply@mail"}, want: "noreply@mail"},
		{name: "nothing set", cfg: config.SMTP{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewTransport(tt.cfg, newNoopLogger()).Sender())
		})
	}
}

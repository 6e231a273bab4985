package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/auth-service/internal/cache"
	"github.com/magabrotheeeer/auth-service/internal/config"
	"github.com/magabrotheeeer/auth-service/internal/http/routepolicy"
	"github.com/magabrotheeeer/auth-service/internal/lib/jwt"
	"github.com/magabrotheeeer/auth-service/internal/metrics"
	"github.com/magabrotheeeer/auth-service/internal/models"
	services "github.com/magabrotheeeer/auth-service/internal/services/auth"
	healthsvc "github.com/magabrotheeeer/auth-service/internal/services/health"
	"github.com/magabrotheeeer/auth-service/internal/storage"
)

// memRepo хранилище пользователей в памяти.
type memRepo struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]models.User{}}
}

func (r *memRepo) CreateUser(_ context.Context, u models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return storage.ErrUserExists
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return storage.ErrEmailTaken
		}
	}
	r.users[u.Username] = u
	return nil
}

func (r *memRepo) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return &u, nil
}

func (r *memRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (r *memRepo) ListUsers(_ context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	out := []*models.User{}
	for i := offset; i < len(names) && i < offset+limit; i++ {
		u := r.users[names[i]]
		out = append(out, &u)
	}
	return out, nil
}

func (r *memRepo) UpdateUser(_ context.Context, username string, upd models.UserUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	r.users[username] = u
	return &u, nil
}

func (r *memRepo) UpdatePassword(_ context.Context, username, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.PasswordHash = hash
	r.users[username] = u
	return nil
}

func (r *memRepo) DeleteUser(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; !ok {
		return storage.ErrUserNotFound
	}
	delete(r.users, username)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.DomainEvent
	codes  []models.RecoveryCodeMessage
}

func (p *fakePublisher) PublishEvent(_ context.Context, e models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) SendRecoveryCode(_ context.Context, m models.RecoveryCodeMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes = append(p.codes, m)
	return nil
}

func (p *fakePublisher) lastCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codes[len(p.codes)-1].Code
}

type alwaysUp struct{}

func (alwaysUp) Ping(context.Context) error { return nil }
func (alwaysUp) IsClosed() bool             { return false }

type testApp struct {
	server    *httptest.Server
	publisher *fakePublisher
}

func newTestApp(t *testing.T, fallback routepolicy.Class, rl config.RateLimit) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	codes := &cache.Cache{Db: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = codes.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	maker, err := jwt.NewJWTMaker(jwt.Settings{SecretKey: "test-secret", Issuer: "issuer.test"})
	require.NoError(t, err)

	pub := &fakePublisher{}
	svc := services.NewAuthService(newMemRepo(), maker, codes, pub, log, m, 15*time.Minute)
	require.NoError(t, svc.EnsureAdmin(context.Background(), "root", "root@example.com", "rootpass"))

	router := chi.NewRouter()
	RegisterRoutes(router, Routes{
		Log:       log,
		Users:     svc,
		Health:    healthsvc.NewService(log, "auth-service", alwaysUp{}, alwaysUp{}, alwaysUp{}),
		Policy:    routepolicy.Default(fallback),
		Tokens:    maker,
		Issuer:    maker.Issuer(),
		Metrics:   m,
		Gatherer:  reg,
		RateLimit: rl,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testApp{server: srv, publisher: pub}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.server.URL+path, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &got)
	return resp.StatusCode, got
}

func tokenOf(t *testing.T, body map[string]any) string {
	t.Helper()
	respuesta, ok := body["respuesta"].(map[string]any)
	require.True(t, ok, "unexpected body %v", body)
	token, ok := respuesta["token"].(string)
	require.True(t, ok)
	return token
}

var generous = config.RateLimit{RPS: 100, Burst: 100}

func TestRoutes_UserFlow(t *testing.T) {
	app := newTestApp(t, routepolicy.Public, generous)

	status, body := app.do(t, http.MethodPost, "/v1/usuarios", "", map[string]string{
		"usuario": "alice", "correo": "alice@example.com", "clave": "password123", "numeroTelefono": "3001234567",
	})
	require.Equal(t, http.StatusCreated, status)
	alice := tokenOf(t, body)

	status, _ = app.do(t, http.MethodPost, "/v1/usuarios", "", map[string]string{
		"usuario": "alice", "correo": "other@example.com", "clave": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, body = app.do(t, http.MethodGet, "/v1/usuarios/alice", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{
		"usuario": "alice", "correo": "alice@example.com", "numeroTelefono": "+573001234567", "rol": "CLIENTE",
	}, body["respuesta"])

	status, body = app.do(t, http.MethodGet, "/v1/usuarios/root", alice, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "cannot access another user's data", body["respuesta"])

	status, _ = app.do(t, http.MethodGet, "/v1/usuarios/alice", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = app.do(t, http.MethodGet, "/v1/usuarios", alice, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = app.do(t, http.MethodPatch, "/v1/usuarios/alice", alice, map[string]string{"correo": "alice@new.example"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice@new.example", body["respuesta"].(map[string]any)["correo"])

	status, body = app.do(t, http.MethodPost, "/v1/sesiones", "", map[string]string{"usuario": "root", "clave": "rootpass"})
	require.Equal(t, http.StatusOK, status)
	admin := tokenOf(t, body)

	status, body = app.do(t, http.MethodGet, "/v1/usuarios?pagina=0", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["respuesta"], 2)

	status, _ = app.do(t, http.MethodGet, "/v1/usuarios/alice", admin, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = app.do(t, http.MethodDelete, "/v1/usuarios/alice", alice, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = app.do(t, http.MethodDelete, "/v1/usuarios/alice", admin, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = app.do(t, http.MethodGet, "/v1/usuarios/alice", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoutes_PasswordRecovery(t *testing.T) {
	app := newTestApp(t, routepolicy.Public, generous)

	status, _ := app.do(t, http.MethodPost, "/v1/usuarios", "", map[string]string{
		"usuario": "bob", "correo": "bob@example.com", "clave": "password123",
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = app.do(t, http.MethodPost, "/v1/codigos", "", map[string]string{"usuario": "ghost"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = app.do(t, http.MethodPost, "/v1/codigos", "", map[string]string{"usuario": "bob"})
	require.Equal(t, http.StatusOK, status)
	code := app.publisher.lastCode()

	status, _ = app.do(t, http.MethodPatch, "/v1/usuarios/bob/contrasena", "", map[string]string{"clave": "newPassword1", "codigo": "ZZZZZZ"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = app.do(t, http.MethodPatch, "/v1/usuarios/bob/contrasena", "", map[string]string{"clave": "newPassword1", "codigo": code})
	require.Equal(t, http.StatusOK, status)

	status, _ = app.do(t, http.MethodPatch, "/v1/usuarios/bob/contrasena", "", map[string]string{"clave": "again12345", "codigo": code})
	assert.Equal(t, http.StatusForbidden, status, "code is single use")

	status, _ = app.do(t, http.MethodPost, "/v1/sesiones", "", map[string]string{"usuario": "bob@example.com", "clave": "password123"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = app.do(t, http.MethodPost, "/v1/sesiones", "", map[string]string{"usuario": "bob@example.com", "clave": "newPassword1"})
	assert.Equal(t, http.StatusOK, status)

	var actions []models.ActionType
	for _, e := range app.publisher.events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []models.ActionType{
		models.ActionUserRegistered,
		models.ActionPasswordRecovery,
		models.ActionPasswordChanged,
		models.ActionAuthenticated,
	}, actions)
}

func TestRoutes_RateLimit(t *testing.T) {
	app := newTestApp(t, routepolicy.Public, config.RateLimit{RPS: 0.001, Burst: 1})
	creds := map[string]string{"usuario": "root", "clave": "rootpass"}

	status, _ := app.do(t, http.MethodPost, "/v1/sesiones", "", creds)
	assert.Equal(t, http.StatusOK, status)

	status, body := app.do(t, http.MethodPost, "/v1/sesiones", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "too many requests", body["respuesta"])

	status, _ = app.do(t, http.MethodPost, "/v1/codigos", "", map[string]string{"usuario": "root"})
	assert.Equal(t, http.StatusOK, status, "each route has its own bucket")

	wrong := "AAAAAA"
	if app.publisher.lastCode() == wrong {
		wrong = "BBBBBB"
	}
	guess := map[string]string{"clave": "newpass1", "codigo": wrong}
	status, _ = app.do(t, http.MethodPatch, "/v1/usuarios/root/contrasena", "", guess)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = app.do(t, http.MethodPatch, "/v1/usuarios/root/contrasena", "", guess)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "too many requests", body["respuesta"])
}

func TestRoutes_Ambient(t *testing.T) {
	app := newTestApp(t, routepolicy.Public, generous)

	status, body := app.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "UP", body["status"])

	status, _ = app.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	resp, err := http.Get(app.server.URL + "/v3/api-docs")
	require.NoError(t, err)
	doc, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(doc), "/v1/sesiones")

	resp, err = http.Get(app.server.URL + "/metrics")
	require.NoError(t, err)
	metricsBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(metricsBody), "auth_gate_decisions_total"))
}

func TestRoutes_DenyFallback(t *testing.T) {
	app := newTestApp(t, routepolicy.Denied, generous)

	status, body := app.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "access denied", body["respuesta"])

	status, _ = app.do(t, http.MethodGet, "/v3/api-docs", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

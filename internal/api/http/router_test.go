package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	"github.com/spec-kit/helpdesk-service/internal/rules"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	app   *fiber.App
	store *memory.Store
}

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	ruleSet, err := rules.Default()
	require.NoError(t, err)

	store := memory.NewStore()
	tokens := auth.NewTokenManager("test-secret", 30)
	metrics := observability.NewMetrics()
	cfg := config.Config{
		App:  config.AppConfig{Name: "helpdesk-test", Version: "test"},
		Auth: config.AuthConfig{BcryptCost: bcrypt.MinCost},
	}
	engine := service.NewEngine(service.EngineDependencies{
		Config: cfg,
		Repos: service.Repositories{
			Transactor:    store,
			Tickets:       store.Tickets(),
			Responses:     store.Responses(),
			History:       store.History(),
			Users:         store.Users(),
			QualityChecks: store.QualityChecks(),
			Notifications: store.Notifications(),
		},
		Rules:        ruleSet,
		TokenManager: tokens,
		Metrics:      metrics,
	})
	engine.Notifications.RegisterHandlers()

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Auth:           handlers.NewAuthHandler(engine.Auth),
		Tickets:        handlers.NewTicketsHandler(engine.Workflow),
		AgentTickets:   handlers.NewAgentTicketsHandler(engine.Workflow),
		Notifications:  handlers.NewNotificationsHandler(engine.Notifications),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users()),
		Metrics:        metrics,
	})

	hash, err := auth.HashPassword("admin-pw", bcrypt.MinCost)
	require.NoError(t, err)
	admin := domain.User{Username: "admin", PasswordHash: hash, Role: domain.UserRoleAdmin}
	require.NoError(t, store.Users().Create(context.Background(), &admin))

	return &testServer{app: app, store: store}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	status, env := s.do(t, fiber.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, fiber.StatusOK, status)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (s *testServer) createUser(t *testing.T, adminToken, username, role, department string) {
	t.Helper()
	status, _ := s.do(t, fiber.MethodPost, "/admin/users", adminToken, map[string]string{
		"username":   username,
		"password":   username + "-pw",
		"role":       role,
		"department": department,
	})
	require.Equal(t, fiber.StatusCreated, status)
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	adminToken := srv.login(t, "admin", "admin-pw")
	srv.createUser(t, adminToken, "agent-a", "agent", "技术支持")
	srv.createUser(t, adminToken, "emma", "employee", "finance")
	agentToken := srv.login(t, "agent-a", "agent-a-pw")
	employeeToken := srv.login(t, "emma", "emma-pw")

	status, env := srv.do(t, fiber.MethodPost, "/tickets", employeeToken, map[string]string{
		"title":   "Laptop",
		"content": "hardware fault, screen is black",
	})
	require.Equal(t, fiber.StatusCreated, status)
	var ticket struct {
		ID              string  `json:"id"`
		Status          string  `json:"status"`
		Source          string  `json:"source"`
		AssignedAgentID *string `json:"assigned_agent_id"`
		Category        *string `json:"category"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "processing", ticket.Status)
	assert.Equal(t, "employee_created", ticket.Source)
	require.NotNil(t, ticket.AssignedAgentID)
	require.NotNil(t, ticket.Category)
	assert.Equal(t, "technical", *ticket.Category)

	status, _ = srv.do(t, fiber.MethodPost, "/agent/tickets/"+ticket.ID+"/respond", agentToken, map[string]string{"content": "Checking the cable"})
	require.Equal(t, fiber.StatusCreated, status)

	status, env = srv.do(t, fiber.MethodPost, "/agent/tickets/"+ticket.ID+"/close", agentToken, map[string]string{"reply": "Replaced the panel"})
	require.Equal(t, fiber.StatusOK, status)
	var closed struct {
		Ticket  struct{ Status string } `json:"ticket"`
		Quality *struct {
			Score        float64 `json:"score"`
			FallbackUsed bool    `json:"fallback_used"`
		} `json:"quality"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &closed))
	assert.Equal(t, "closed", closed.Ticket.Status)
	require.NotNil(t, closed.Quality)
	assert.True(t, closed.Quality.FallbackUsed)
	assert.Equal(t, 70.0, closed.Quality.Score)

	status, env = srv.do(t, fiber.MethodGet, "/notifications/unread-count", employeeToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var unread struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &unread))
	assert.Equal(t, 1, unread.Count)

	status, env = srv.do(t, fiber.MethodGet, "/tickets/"+ticket.ID, employeeToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var detail struct {
		Responses []struct{ Content string } `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Len(t, detail.Responses, 2)
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, nil)
	adminToken := srv.login(t, "admin", "admin-pw")
	srv.createUser(t, adminToken, "agent-b", "agent", "support")
	srv.createUser(t, adminToken, "frank", "employee", "")
	agentToken := srv.login(t, "agent-b", "agent-b-pw")
	employeeToken := srv.login(t, "frank", "frank-pw")

	status, env := srv.do(t, fiber.MethodGet, "/tickets/mine", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = srv.do(t, fiber.MethodPost, "/auth/login", "", map[string]string{"username": "frank", "password": "nope"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	require.NotNil(t, env.Error)

	status, env = srv.do(t, fiber.MethodPost, "/agent/tickets/missing/process", employeeToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = srv.do(t, fiber.MethodPost, "/agent/tickets/missing/process", agentToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = srv.do(t, fiber.MethodPost, "/tickets", employeeToken, map[string]string{"title": "no body"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = srv.do(t, fiber.MethodPost, "/tickets", employeeToken, map[string]string{"title": "VPN", "content": "vpn down"})
	require.Equal(t, fiber.StatusCreated, status)
	var ticket struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ticket))

	status, _ = srv.do(t, fiber.MethodPost, "/agent/tickets/"+ticket.ID+"/close", agentToken, map[string]bool{"skip_quality_check": true})
	require.Equal(t, fiber.StatusOK, status)

	status, env = srv.do(t, fiber.MethodPost, "/agent/tickets/"+ticket.ID+"/resolve", agentToken, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
}

func TestHealthChecks(t *testing.T) {
	srv := newTestServer(t, map[string]handlers.Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
		"redis":    pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	status, _ := srv.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, env := srv.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ok", env.Error.Details["postgres"])
	assert.Equal(t, "connection refused", env.Error.Details["redis"])

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
}

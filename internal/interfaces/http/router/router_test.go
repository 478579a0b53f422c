package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/catalogsync/internal/infrastructure/auth"
	"github.com/erp/catalogsync/internal/infrastructure/config"
	"github.com/erp/catalogsync/internal/interfaces/http/handler"
	"github.com/erp/catalogsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "/api/v1", r.BasePath())

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	engine.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	var seen int
	r := NewRouter(engine, WithMiddleware(func(c *gin.Context) {
		seen++
		c.Next()
	}))
	g := NewDomainGroup("test", "/test").
		GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	routes := r.Register(g).Setup()

	require.Len(t, routes, 1)
	assert.Equal(t, RouteInfo{Group: "test", Method: "GET", Path: "/api/v1/test/ping"}, routes[0])

	w := serve(engine, http.MethodGet, "/api/v1/test/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, 1, seen)

	w = serve(engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, seen, "API middleware must not run for health checks")
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("catalog", "/catalog")
		assert.Equal(t, "catalog", g.Name())
		assert.Equal(t, "/catalog", g.Prefix())
	})

	t.Run("methods", func(t *testing.T) {
		engine := gin.New()
		ok := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) }
		g := NewDomainGroup("test", "/test").
			GET("/x", ok).
			POST("/x", ok).
			PUT("/x", ok).
			DELETE("/x", ok).
			Handle(http.MethodPatch, "/x", ok)
		g.RegisterRoutes(engine.Group("/api/v1"))

		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			w := serve(engine, method, "/api/v1/test/x", nil)
			assert.Equal(t, http.StatusOK, w.Code, method)
			assert.Equal(t, method, w.Body.String())
		}
	})

	t.Run("group middleware and subgroups", func(t *testing.T) {
		engine := gin.New()
		var order []string
		mw := func(name string) gin.HandlerFunc {
			return func(c *gin.Context) {
				order = append(order, name)
				c.Next()
			}
		}
		g := NewDomainGroup("parent", "/parent").Use(mw("parent"))
		g.Group("child", "/child").
			Use(mw("child")).
			GET("/leaf", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodGet, "/api/v1/parent/child/leaf", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{"parent", "child"}, order)
		assert.Equal(t, []RouteInfo{
			{Group: "child", Method: "GET", Path: "/api/v1/parent/child/leaf"},
		}, g.Routes("/api/v1"))
	})
}

const testSecret = "router-test-secret-at-least-32-chars"

func token(t *testing.T, scopes ...string) string {
	t.Helper()
	now := time.Now()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Scopes: scopes,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func TestGroups_Authorization(t *testing.T) {
	engine := gin.New()
	authn := middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{
		JWTService: auth.NewJWTService(config.JWTConfig{Secret: testSecret}),
	})
	var webhookGuard int
	h := Handlers{
		Entity:       handler.NewEntityHandler(nil),
		Sync:         handler.NewSyncHandler(nil, nil),
		Outbox:       handler.NewOutboxHandler(nil),
		Notification: handler.NewNotificationHandler(nil, time.Hour),
		Webhook:      handler.NewWebhookHandler(nil, nil, false),
	}
	routes := NewRouter(engine).Register(Groups(h, Guards{
		Auth: authn,
		Webhook: []gin.HandlerFunc{func(c *gin.Context) {
			webhookGuard++
			c.AbortWithStatus(http.StatusTooManyRequests)
		}},
	})...).Setup()

	paths := make(map[string]bool, len(routes))
	for _, r := range routes {
		paths[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /api/v1/catalog/entities",
		"POST /api/v1/catalog/entities",
		"PUT /api/v1/catalog/entities/:id/channels/:platform",
		"POST /api/v1/sync/entities/:id/resync",
		"PUT /api/v1/sync/kill-switch",
		"POST /api/v1/system/outbox/:id/retry",
		"POST /api/v1/notifications/send",
		"POST /api/v1/webhooks/:platform/:kind",
	} {
		assert.True(t, paths[want], want)
	}

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		status int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/v1/catalog/entities", status: http.StatusUnauthorized},
		{name: "read scope cannot write", method: http.MethodDelete, path: "/api/v1/catalog/entities/x", auth: token(t, auth.ScopeRead), status: http.StatusForbidden},
		{name: "write scope cannot flip the kill switch", method: http.MethodPut, path: "/api/v1/sync/kill-switch", auth: token(t, auth.ScopeWrite), status: http.StatusForbidden},
		{name: "write scope cannot replay the outbox", method: http.MethodPost, path: "/api/v1/system/outbox/dead/retry-all", auth: token(t, auth.ScopeRead, auth.ScopeWrite), status: http.StatusForbidden},
		{name: "read scope cannot send notifications", method: http.MethodPost, path: "/api/v1/notifications/send", auth: token(t, auth.ScopeRead), status: http.StatusForbidden},
		{name: "webhooks skip bearer auth", method: http.MethodPost, path: "/api/v1/webhooks/shop/product", status: http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.auth != "" {
				headers["Authorization"] = tt.auth
			}
			w := serve(engine, tt.method, tt.path, headers)
			assert.Equal(t, tt.status, w.Code)
		})
	}
	assert.Equal(t, 1, webhookGuard)
}

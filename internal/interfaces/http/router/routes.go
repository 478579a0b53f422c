package router

import (
	"github.com/erp/catalogsync/internal/infrastructure/auth"
	"github.com/erp/catalogsync/internal/interfaces/http/handler"
	"github.com/erp/catalogsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers are the API handlers mounted by Groups
type Handlers struct {
	Entity       *handler.EntityHandler
	Sync         *handler.SyncHandler
	Outbox       *handler.OutboxHandler
	Notification *handler.NotificationHandler
	Webhook      *handler.WebhookHandler
}

// Guards are the middleware in front of each area. Auth verifies the admin
// bearer token; Webhook runs before signature verification.
type Guards struct {
	Auth    gin.HandlerFunc
	Webhook []gin.HandlerFunc
}

// Groups builds the service's route table. Admin areas require Auth plus a
// scope; webhooks are authenticated by their signature instead.
func Groups(h Handlers, g Guards) []*DomainGroup {
	authn := g.Auth
	if authn == nil {
		authn = func(c *gin.Context) { c.Next() }
	}

	catalog := NewDomainGroup("catalog", "/catalog/entities").Use(authn)
	catalog.GET("", middleware.RequireScope(auth.ScopeRead), h.Entity.List).
		GET("/:id", middleware.RequireScope(auth.ScopeRead), h.Entity.GetByID)
	catalog.Group("catalog-write", "").
		Use(middleware.RequireScope(auth.ScopeWrite)).
		POST("", h.Entity.Create).
		PUT("/:id", h.Entity.Update).
		DELETE("/:id", h.Entity.Delete).
		POST("/:id/publish", h.Entity.Publish).
		POST("/:id/unpublish", h.Entity.Unpublish).
		PUT("/:id/channels/:platform", h.Entity.AssignChannel).
		DELETE("/:id/channels/:platform", h.Entity.UnassignChannel)

	sync := NewDomainGroup("sync", "/sync").
		Use(authn, middleware.RequireScope(auth.ScopeAdmin)).
		POST("/entities/:id/resync", h.Sync.ResyncEntity).
		POST("/sweep", h.Sync.Sweep).
		GET("/attempts", h.Sync.ListAttempts).
		GET("/kill-switch", h.Sync.GetKillSwitch).
		PUT("/kill-switch", h.Sync.SetKillSwitch)

	outbox := NewDomainGroup("outbox", "/system/outbox").
		Use(authn, middleware.RequireScope(auth.ScopeAdmin)).
		GET("/dead", h.Outbox.GetDeadLetterEntries).
		POST("/dead/retry-all", h.Outbox.RetryAllDeadEntries).
		GET("/stats", h.Outbox.GetStats).
		GET("/:id", h.Outbox.GetEntry).
		POST("/:id/retry", h.Outbox.RetryDeadEntry)

	notifications := NewDomainGroup("notifications", "/notifications").
		Use(authn).
		POST("/send", middleware.RequireScope(auth.ScopeWrite), h.Notification.Send).
		POST("/cleanup", middleware.RequireScope(auth.ScopeAdmin), h.Notification.Cleanup)

	webhooks := NewDomainGroup("webhooks", "/webhooks").
		Use(g.Webhook...).
		POST("/:platform/:kind", h.Webhook.Receive)

	return []*DomainGroup{catalog, sync, outbox, notifications, webhooks}
}

package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/internal/response"
	"github.com/lernio/gatekeeper/middleware"
	"go.uber.org/zap"
)

// Options wires the router.
type Options struct {
	Engine *gatekeeper.Engine
	Log    *zap.Logger

	// Production marks cookies Secure and restricts CORS to AllowedOrigins.
	Production     bool
	AllowedOrigins []string

	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
}

// Handler holds the dependencies shared by every route.
type Handler struct {
	engine        *gatekeeper.Engine
	log           *zap.Logger
	secureCookies bool
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(cors.New(corsConfig(opts)))

	h := &Handler{engine: opts.Engine, log: log, secureCookies: opts.Production}
	h.RegisterRoutes(router, opts.Metrics)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.Envelope{Error: string(gatekeeper.KindNotFound), Message: "Not found"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, response.Envelope{Error: "method_not_allowed", Message: "Method not allowed"})
	})
	return router
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r gin.IRouter, metrics http.Handler) {
	e := h.engine
	strict := middleware.RateLimit(e, gatekeeper.PolicyStrict)
	authLimit := middleware.RateLimit(e, gatekeeper.PolicyAuth)
	administrator := middleware.RequireRole(e, gatekeeper.RoleAdministrator)

	r.GET("/health", h.health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	a := r.Group("/auth")
	a.POST("/password-reset/confirm", strict, h.confirmPasswordReset)
	for _, role := range gatekeeper.Roles {
		g := a.Group("/" + strings.ToLower(role))
		g.POST("/login", authLimit, h.login(role))
		g.POST("/password-reset", strict, h.requestPasswordReset(role))

		authed := g.Group("", middleware.RequireRole(e, role))
		authed.GET("/me", h.me)
		authed.POST("/logout", h.logout(role))
		authed.GET("/sessions", h.listSessions)
		authed.DELETE("/sessions", h.revokeAllSessions(role))
		authed.DELETE("/sessions/:id", h.revokeSession)
	}

	ar := r.Group("/admin-requests")
	ar.POST("", strict, h.submitAdminRequest)
	ar.GET("", administrator, h.listAdminRequests)
	ar.GET("/counts", administrator, h.adminRequestCounts)
	ar.POST("/:id/approve", administrator, h.approveAdminRequest)
	ar.POST("/:id/reject", administrator, h.rejectAdminRequest)

	r.POST("/mail/test", administrator, strict, h.sendTestMail)
}

func corsConfig(opts Options) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID, middleware.HeaderRateLimitLimit, middleware.HeaderRateLimitRemaining, middleware.HeaderRateLimitReset},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if !opts.Production {
		cfg.AllowOriginFunc = func(string) bool { return true }
		return cfg
	}
	// Production only reflects listed origins; an empty list admits none.
	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = struct{}{}
		}
	}
	cfg.AllowOriginFunc = func(origin string) bool {
		_, ok := allowed[origin]
		return ok
	}
	return cfg
}

func (h *Handler) health(c *gin.Context) {
	report := h.engine.Health(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// fail writes err as an envelope and logs internal failures with their
// detail, which the client never sees.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	status, body := response.Describe(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("op", op),
			zap.String("request_id", gatekeeper.RequestIDFromContext(c.Request.Context())),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.BadRequest(c, "Request body is not valid JSON or misses required fields")
		return false
	}
	return true
}

func (h *Handler) payload(c *gin.Context) *gatekeeper.TokenPayload {
	p, _ := middleware.Payload(c)
	return p
}

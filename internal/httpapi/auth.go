package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/internal/response"
	"github.com/lernio/gatekeeper/middleware"
)

type loginBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Device   string `json:"device"`
	Location string `json:"location"`
}

type passwordResetBody struct {
	Email string `json:"email" binding:"required"`
}

type passwordResetConfirmBody struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body loginBody
		if !h.bind(c, &body) {
			return
		}

		res, err := h.engine.Login(c.Request.Context(), gatekeeper.LoginRequest{
			Email:    body.Email,
			Password: body.Password,
			Role:     role,
			Device:   body.Device,
			Location: body.Location,
		})
		if err != nil {
			h.fail(c, "login", err)
			return
		}
		if res.Session.LimitExceeded {
			response.Conflict(c, gatekeeper.ErrSessionLimitExceeded, gin.H{
				"activeSessions": toSessionViews(res.Session.ActiveSessions, ""),
			})
			return
		}

		h.setAuthCookie(c, role, res.Token)
		response.OK(c, gin.H{
			"user":    toAccountView(res.Account),
			"token":   res.Token,
			"session": toSessionViews([]*gatekeeper.Session{res.Session.Session}, res.Session.Session.SessionID)[0],
		})
	}
}

func (h *Handler) me(c *gin.Context) {
	response.OK(c, h.payload(c))
}

func (h *Handler) logout(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.engine.Logout(c.Request.Context(), h.payload(c)); err != nil {
			h.fail(c, "logout", err)
			return
		}
		h.clearAuthCookie(c, role)
		response.Message(c, "Logged out")
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	p := h.payload(c)
	sessions, err := h.engine.GetActiveSessions(c.Request.Context(), p.Email, p.Role)
	if err != nil {
		h.fail(c, "sessions.list", err)
		return
	}
	response.OK(c, toSessionViews(sessions, p.SessionID))
}

func (h *Handler) revokeSession(c *gin.Context) {
	p := h.payload(c)
	err := h.engine.InvalidateSession(c.Request.Context(), c.Param("id"), p.Email, p.Role)
	if err != nil {
		h.fail(c, "sessions.revoke", err)
		return
	}
	response.Message(c, "Session revoked")
}

func (h *Handler) revokeAllSessions(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := h.payload(c)
		n, err := h.engine.InvalidateAllSessions(c.Request.Context(), p.Email, p.Role)
		if err != nil {
			h.fail(c, "sessions.revoke_all", err)
			return
		}
		h.clearAuthCookie(c, role)
		response.OK(c, gin.H{"revoked": n})
	}
}

func (h *Handler) requestPasswordReset(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body passwordResetBody
		if !h.bind(c, &body) {
			return
		}
		if _, err := h.engine.RequestPasswordReset(c.Request.Context(), body.Email, role); err != nil {
			h.fail(c, "password_reset.request", err)
			return
		}
		response.Message(c, "If an account exists for this email, a reset link has been sent")
	}
}

func (h *Handler) confirmPasswordReset(c *gin.Context) {
	var body passwordResetConfirmBody
	if !h.bind(c, &body) {
		return
	}
	rec, err := h.engine.CompletePasswordReset(c.Request.Context(), body.Token, body.Password)
	if err != nil {
		h.fail(c, "password_reset.confirm", err)
		return
	}
	if role, err := gatekeeper.ParseRole(rec.Stakeholder); err == nil {
		h.clearAuthCookie(c, role)
	}
	response.Message(c, "Password updated, please sign in again")
}

func (h *Handler) setAuthCookie(c *gin.Context, role, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName(role), token, int(h.engine.TokenTTL().Seconds()), "/", "", h.secureCookies, true)
}

func (h *Handler) clearAuthCookie(c *gin.Context, role string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName(role), "", -1, "/", "", h.secureCookies, true)
}

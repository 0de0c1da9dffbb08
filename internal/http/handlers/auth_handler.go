// Account and session HTTP handlers.
//
//   - POST /auth/register
//   - POST /auth/login      (sets the HttpOnly access_token cookie)
//   - POST /auth/refresh    (new access + csrf token, same refresh token)
//   - POST /auth/logout     (revokes the access token, deletes the refresh token)
//   - GET  /auth/csrf
//   - GET  /users/me
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Name     string `json:"name"     binding:"required" example:"Ada Lovelace"`
	Email    string `json:"email"    binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"s3cret!"`
}

// LoginRequest is the JSON payload for logging in.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"s3cret!"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest optionally carries the refresh token to delete.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	CSRFToken    string       `json:"csrf_token"`
	TokenType    string       `json:"token_type" example:"Bearer"`
	ExpiresIn    int64        `json:"expires_in" example:"1800"`
	User         *domain.User `json:"user,omitempty"`
}

// CSRFResponse carries a fresh anti-forgery token.
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, email and password are required")
		return
	}
	u, err := h.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Returns access, refresh and anti-forgery tokens and sets the access_token cookie.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.TokenResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	sess, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	h.setAccessCookie(c, sess.AccessToken, sess.AccessExpiresAt)
	middleware.LoggerFrom(c).Info().Str("user_id", sess.User.ID).Msg("login")
	ok(c, http.StatusOK, h.tokenResponse(sess))
}

// Refresh godoc
// @ID          refresh
// @Summary     Refresh the access token
// @Description The refresh token is not rotated; it stays valid until it expires or the user logs out.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RefreshRequest  true  "Refresh token"
// @Success     200   {object}  handlers.TokenResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid refresh token"
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "refresh_token is required")
		return
	}
	sess, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		failErr(c, err)
		return
	}
	h.setAccessCookie(c, sess.AccessToken, sess.AccessExpiresAt)
	resp := h.tokenResponse(sess)
	resp.RefreshToken = ""
	ok(c, http.StatusOK, resp)
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Tags        Auth
// @Accept      json
// @Param       X-CSRF-Token  header  string                  true   "Anti-forgery token"
// @Param       body          body    handlers.LogoutRequest  false  "Refresh token to delete"
// @Success     204
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Anti-forgery check failed"
// @Security    BearerAuth
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	var req LogoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	if err := h.sessions.Logout(c.Request.Context(), middleware.AccessToken(c), req.RefreshToken); err != nil {
		failErr(c, err)
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", h.opts.CookieSecure, true)
	noContent(c)
}

// CSRF godoc
// @ID          csrf
// @Summary     Issue an anti-forgery token
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.CSRFResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Security    BearerAuth
// @Router      /auth/csrf [get]
func (h *Handlers) CSRF(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	tok, err := h.sessions.IssueCSRF(id.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CSRFResponse{CSRFToken: tok})
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Users
// @Produce     json
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse
// @Security    BearerAuth
// @Router      /users/me [get]
func (h *Handlers) Me(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	u, err := h.accounts.Get(c.Request.Context(), id.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

func (h *Handlers) tokenResponse(s *services.Session) TokenResponse {
	ttl := h.opts.AccessTTL
	if !s.AccessExpiresAt.IsZero() {
		ttl = time.Until(s.AccessExpiresAt).Round(time.Second)
	}
	return TokenResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		CSRFToken:    s.CSRFToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(ttl.Seconds()),
		User:         s.User,
	}
}

func (h *Handlers) setAccessCookie(c *gin.Context, token string, exp time.Time) {
	maxAge := int(time.Until(exp).Seconds())
	if exp.IsZero() {
		maxAge = int(h.opts.AccessTTL.Seconds())
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, token, maxAge, "/", "", h.opts.CookieSecure, true)
}

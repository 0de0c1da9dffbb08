package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
)

// ServeWS godoc
// @ID          connectConversation
// @Summary     Open a live connection to a conversation
// @Description Upgrades to WebSocket. The access token comes from the token query parameter, the Authorization header or the access_token cookie. Refusals are reported as close frames: 4401 unauthenticated, 4403 not a member, 4404 unknown conversation, 4503 session check unavailable.
// @Tags        Realtime
// @Param       id     path   string  true   "Conversation ID"
// @Param       token  query  string  false  "Access token"
// @Success     101
// @Router      /ws/conversations/{id} [get]
func (h *Handlers) ServeWS(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = middleware.BearerToken(c)
	}
	h.sockets.ServeWS(c.Writer, c.Request, c.Param("id"), token, h.opts.Transport)
}

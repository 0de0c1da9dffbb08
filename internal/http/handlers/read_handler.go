// Read receipt HTTP handler.
//
//   - POST /messages/{id}/read
//
// Marking a message read is idempotent. Every successful call pushes a read
// event to the conversation; Changed reports whether this call set the flag.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/realtime"
)

// MarkReadResponse returns the message after the update.
type MarkReadResponse struct {
	Message *domain.Message `json:"message"`
	Changed bool            `json:"changed"`
}

// MarkRead godoc
// @ID          markRead
// @Summary     Mark a message read
// @Tags        Messages
// @Produce     json
// @Param       X-CSRF-Token  header  string  true  "Anti-forgery token"
// @Param       id            path    string  true  "Message ID"
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Security    BearerAuth
// @Router      /messages/{id}/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	m, changed, err := h.msgs.MarkRead(c.Request.Context(), c.Param("id"), id)
	if err != nil {
		failErr(c, err)
		return
	}
	h.broadcast(m.ConversationID, realtime.Event{Type: realtime.EventRead, MessageID: m.ID, ReaderID: id.UserID})
	ok(c, http.StatusOK, MarkReadResponse{Message: m, Changed: changed})
}

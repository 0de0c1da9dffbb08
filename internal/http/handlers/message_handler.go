// Message HTTP handlers.
//
//   - GET  /conversations/{id}/messages?limit&offset  (history, ETag)
//   - POST /conversations/{id}/messages               (append, Idempotency-Key)
//
// A REST append shares the ledger and the fanout with WebSocket sends: a new
// message is pushed to every live connection of the conversation, while a
// replayed key returns the stored message with Idempotency-Replayed: true
// and pushes nothing.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
	"github.com/tbourn/go-realtime-chat/internal/realtime"
	"github.com/tbourn/go-realtime-chat/internal/utils"
)

// PostMessageRequest is the JSON payload for sending a message.
type PostMessageRequest struct {
	// Text is normalized (NFC, LF line endings) and must be non-empty after trimming.
	Text string `json:"text" binding:"required" example:"See you at 10?"`
}

// PostMessageResponse wraps the stored message.
type PostMessageResponse struct {
	Message  *domain.Message `json:"message"`
	Replayed bool            `json:"replayed"`
}

// ListMessagesResponse contains a page of history in append order.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination carries limit/offset paging metadata.
type Pagination struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Total   int64 `json:"total"`
	HasNext bool  `json:"has_next"`
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Message history
// @Description Oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
// @Param       id             path    string  true   "Conversation ID"
// @Param       limit          query   int     false  "Page size"  minimum(1) maximum(100) default(10)
// @Param       offset         query   int     false  "Skip"       minimum(0) default(0)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListMessagesResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse
// @Security    BearerAuth
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	convID := c.Param("id")

	if _, err := h.convs.GetForMember(ctx, id, convID); err != nil {
		failErr(c, err)
		return
	}

	limit, offset := utils.ClampLimitOffset(
		utils.AtoiDefault(c.Query("limit"), utils.DefaultLimit),
		utils.AtoiDefault(c.Query("offset"), 0),
	)

	// The validator covers the whole history, so it is shared by every page;
	// paging parameters are part of the request URL.
	if n, latest, err := h.msgs.HistoryVersion(ctx, convID); err == nil {
		if notModified(c, weakETag("messages", convID, n, latest)) {
			return
		}
	}

	items, total, err := h.msgs.History(ctx, convID, limit, offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			Total:   total,
			HasNext: int64(offset+len(items)) < total,
		},
	})
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Same Idempotency-Key from the same sender in the same conversation returns the stored message (200, Idempotency-Replayed: true) instead of creating a new one.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-CSRF-Token     header  string                        true  "Anti-forgery token"
// @Param       Idempotency-Key  header  string                        true  "Client-chosen key, at most 128 of [A-Za-z0-9._~:-]"
// @Param       id               path    string                        true  "Conversation ID"
// @Param       body             body    handlers.PostMessageRequest   true  "Message"
// @Success     201  {object}  handlers.PostMessageResponse  "Created"
// @Success     200  {object}  handlers.PostMessageResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Key used elsewhere"
// @Security    BearerAuth
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	convID := c.Param("id")

	key, hasKey := middleware.GetIdempotencyKey(c)
	if !hasKey {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Idempotency-Key header is required")
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text is required")
		return
	}
	if _, err := h.convs.GetForMember(ctx, id, convID); err != nil {
		failErr(c, err)
		return
	}

	m, created, err := h.msgs.Append(ctx, convID, id.UserID, req.Text, key)
	if err != nil {
		failErr(c, err)
		return
	}
	if !created {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, PostMessageResponse{Message: m, Replayed: true})
		return
	}
	h.broadcast(convID, realtime.Event{Type: realtime.EventMessage, Message: m})
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

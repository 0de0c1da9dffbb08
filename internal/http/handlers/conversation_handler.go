// Conversation HTTP handlers.
//
//   - GET    /conversations                      (caller's conversations, ETag)
//   - POST   /conversations/personal
//   - POST   /conversations/group
//   - GET    /conversations/{id}
//   - GET    /conversations/{id}/members
//   - POST   /conversations/{id}/members         (creator or ADMIN)
//   - DELETE /conversations/{id}/members/{userID} (creator or ADMIN)
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// CreatePersonalRequest names the other participant; the caller is the first.
type CreatePersonalRequest struct {
	UserID string `json:"user_id" binding:"required" example:"3f1c2b9a-8d7e-4c6b-9a5f-1e2d3c4b5a69"`
}

// CreateGroupRequest is the JSON payload for creating a group.
type CreateGroupRequest struct {
	Name string `json:"name" binding:"required" example:"Platform team"`
}

// AddMemberRequest names the user to add.
type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required" example:"3f1c2b9a-8d7e-4c6b-9a5f-1e2d3c4b5a69"`
}

// ListConversationsResponse wraps the caller's conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

// MembersResponse wraps a member list.
type MembersResponse struct {
	Members []domain.User `json:"members"`
}

// weakETag formats the validator used by list endpoints.
func weakETag(scope, id string, count int64, latest *time.Time) string {
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	return fmt.Sprintf(`W/"%s:%s:%d:%d"`, scope, id, count, ts)
}

// notModified sets ETag and reports whether If-None-Match matched it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List my conversations
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListConversationsResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse
// @Security    BearerAuth
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	if n, latest, err := h.convs.ListVersion(ctx, id.UserID); err == nil {
		if notModified(c, weakETag("conversations", id.UserID, n, latest)) {
			return
		}
	}

	items, err := h.convs.ListForUser(ctx, id.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items})
}

// CreatePersonal godoc
// @ID          createPersonal
// @Summary     Open a personal conversation
// @Description At most one personal conversation exists per pair of users, in either order.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       X-CSRF-Token  header  string                          true  "Anti-forgery token"
// @Param       body          body    handlers.CreatePersonalRequest  true  "Other participant"
// @Success     201  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already exists"
// @Security    BearerAuth
// @Router      /conversations/personal [post]
func (h *Handlers) CreatePersonal(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	var req CreatePersonalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	conv, err := h.convs.CreatePersonal(c.Request.Context(), id, id.UserID, req.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, conv)
}

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a group
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       X-CSRF-Token  header  string                       true  "Anti-forgery token"
// @Param       body          body    handlers.CreateGroupRequest  true  "Group"
// @Success     201  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse
// @Security    BearerAuth
// @Router      /conversations/group [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	conv, err := h.convs.CreateGroup(c.Request.Context(), req.Name, id.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, conv)
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation
// @Tags        Conversations
// @Produce     json
// @Param       id   path      string  true  "Conversation ID"
// @Success     200  {object}  domain.Conversation
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse
// @Security    BearerAuth
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	conv, err := h.convs.GetForMember(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// ListMembers godoc
// @ID          listMembers
// @Summary     List members
// @Tags        Conversations
// @Produce     json
// @Param       id   path      string  true  "Conversation ID"
// @Success     200  {object}  handlers.MembersResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse
// @Security    BearerAuth
// @Router      /conversations/{id}/members [get]
func (h *Handlers) ListMembers(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	users, err := h.convs.Members(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	ok(c, http.StatusOK, MembersResponse{Members: users})
}

// AddMember godoc
// @ID          addMember
// @Summary     Add a group member
// @Tags        Conversations
// @Accept      json
// @Param       X-CSRF-Token  header  string                     true  "Anti-forgery token"
// @Param       id            path    string                     true  "Conversation ID"
// @Param       body          body    handlers.AddMemberRequest  true  "Member"
// @Success     204
// @Failure     400  {object}  handlers.ErrorResponse  "Not a group"
// @Failure     403  {object}  handlers.ErrorResponse  "Only the creator or an admin"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Already a member"
// @Security    BearerAuth
// @Router      /conversations/{id}/members [post]
func (h *Handlers) AddMember(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	if err := h.convs.AddMember(c.Request.Context(), id, c.Param("id"), req.UserID); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// RemoveMember godoc
// @ID          removeMember
// @Summary     Remove a group member
// @Description Takes effect on the removed user's live connections at their next event.
// @Tags        Conversations
// @Param       X-CSRF-Token  header  string  true  "Anti-forgery token"
// @Param       id            path    string  true  "Conversation ID"
// @Param       userID        path    string  true  "User ID"
// @Success     204
// @Failure     400  {object}  handlers.ErrorResponse  "Creator cannot be removed"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Security    BearerAuth
// @Router      /conversations/{id}/members/{userID} [delete]
func (h *Handlers) RemoveMember(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	if err := h.convs.RemoveMember(c.Request.Context(), id, c.Param("id"), c.Param("userID")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Store is the persistence the REST surface needs.
type Store interface {
	UpsertStudent(ctx context.Context, s domain.Identity) error
	CreateGroup(ctx context.Context, name string, creator domain.UserID) (domain.Group, error)
	GroupsOf(ctx context.Context, student domain.UserID) ([]domain.Group, error)
	AddMember(ctx context.Context, group domain.GroupID, student domain.UserID) error
	RemoveMember(ctx context.Context, group domain.GroupID, student domain.UserID) error
	GroupMessages(ctx context.Context, group domain.GroupID, limit int) ([]domain.Message, error)
	DeleteMessage(ctx context.Context, id domain.MessageID, requester domain.UserID) (*domain.Message, error)
	DeleteMessages(ctx context.Context, group domain.GroupID, requester domain.UserID, ids []domain.MessageID) ([]domain.MessageID, error)
}

type sessionRequest struct {
	UserID domain.UserID `json:"userId" binding:"required"`
}

type studentRequest struct {
	ID      domain.UserID `json:"id" binding:"required,max=64"`
	Name    string        `json:"name" binding:"required,max=100"`
	Email   string        `json:"email" binding:"omitempty,email"`
	College string        `json:"college" binding:"max=200"`
}

type groupRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type sendRequest struct {
	GroupID     domain.GroupID `json:"group_id" binding:"required"`
	MessageText string         `json:"message_text" binding:"required"`
}

type deleteRequest struct {
	GroupID    domain.GroupID     `json:"groupId" binding:"required"`
	MessageIDs []domain.MessageID `json:"messageIds" binding:"required,min=1,max=500,dive,gt=0"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.Orch.Registry.Len(),
		"calls":       s.Orch.Calls.Len(),
	})
}

func (s *Server) openSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session := sessions.Default(c)
	session.Set(sessionUserID, string(req.UserID))
	if err := session.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session not saved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": req.UserID})
}

// requireUser resolves the acting user from the cookie session.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := sessions.Default(c).Get(sessionUserID).(string)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no session"})
			return
		}
		c.Set(ctxUserID, domain.UserID(uid))
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserID {
	uid, _ := c.Get(ctxUserID)
	id, _ := uid.(domain.UserID)
	return id
}

func (s *Server) upsertStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.ID != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "profile of another user"})
		return
	}
	id, err := domain.NewIdentity(req.ID, req.Name, req.Email, req.College)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.Store.UpsertStudent(c.Request.Context(), *id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

func (s *Server) listGroups(c *gin.Context) {
	groups, err := s.Store.GroupsOf(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) createGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := s.Store.CreateGroup(c.Request.Context(), req.Name, currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (s *Server) joinGroup(c *gin.Context) {
	group := domain.GroupID(c.Param("group_id"))
	if err := s.Store.AddMember(c.Request.Context(), group, currentUser(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// leaveGroup revokes membership. Live subscriptions stay until the client
// leaves, but every later membership check fails.
func (s *Server) leaveGroup(c *gin.Context) {
	group := domain.GroupID(c.Param("group_id"))
	if err := s.Store.RemoveMember(c.Request.Context(), group, currentUser(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) activeCalls(c *gin.Context) {
	group := domain.GroupID(c.Param("group_id"))
	calls, err := s.Orch.ActiveCalls(c.Request.Context(), currentUser(c), group)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

func (s *Server) history(c *gin.Context) {
	ctx := c.Request.Context()
	group := domain.GroupID(c.Param("group_id"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if err := s.Orch.Rooms.Authorize(ctx, group, currentUser(c)); err != nil {
		fail(c, err)
		return
	}
	msgs, err := s.Store.GroupMessages(ctx, group, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	uid := currentUser(c)
	if s.Signal != nil && s.Signal.Limiter != nil && !s.Signal.Limiter.Allow(uid) {
		fail(c, domain.ErrRateLimited)
		return
	}
	msg, err := s.Orch.PostMessage(c.Request.Context(), uid, req.GroupID, req.MessageText)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) deleteMessage(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	uid := currentUser(c)
	msg, err := s.Store.DeleteMessage(ctx, domain.MessageID(n), uid)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Orch.AnnounceDeleted(ctx, uid, msg.GroupID, []domain.MessageID{msg.ID}); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Int64("message", n).Msg("deleted message not announced")
	}
	c.JSON(http.StatusOK, gin.H{"deleted": []domain.MessageID{msg.ID}})
}

func (s *Server) deleteMessages(c *gin.Context) {
	ctx := c.Request.Context()
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	uid := currentUser(c)
	if err := s.Orch.Rooms.Authorize(ctx, req.GroupID, uid); err != nil {
		fail(c, err)
		return
	}
	deleted, err := s.Store.DeleteMessages(ctx, req.GroupID, uid, req.MessageIDs)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Orch.AnnounceDeleted(ctx, uid, req.GroupID, deleted); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("group", string(req.GroupID)).Msg("deleted messages not announced")
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPayload):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrMembershipUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": domain.ErrorCode(err), "details": err.Error()})
}

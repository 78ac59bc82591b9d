package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chat-history/internal/chat"
	"github.com/suPer8Hu/chat-history/internal/common"
	"github.com/suPer8Hu/chat-history/internal/httpapi/middleware"
	"github.com/suPer8Hu/chat-history/internal/models"
	"go.uber.org/zap"
)

const defaultPageLimit = 100

type startConversationReq struct {
	Mode  string `json:"mode"`
	Title string `json:"title"`
}

type sendMessageReq struct {
	Content string `json:"content"`
}

type renameReq struct {
	Title string `json:"title"`
}

// bindOptionalJSON treats an empty body as "no fields given".
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "conversation not found")
	case errors.Is(err, chat.ErrInvalidMode),
		errors.Is(err, chat.ErrInvalidPage),
		errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrEmptyTitle):
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidParam, err.Error())
	default:
		h.Log.Error(op+" failed",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
		common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "internal server error")
	}
}

func (h *Handler) StartConversation(c *gin.Context) {
	var req startConversationReq
	if err := bindOptionalJSON(c, &req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "invalid json")
		return
	}

	conv, err := h.ChatSvc.StartConversation(c.Request.Context(), models.Mode(req.Mode), req.Title)
	if err != nil {
		h.fail(c, "start conversation", err)
		return
	}
	common.OK(c, conv)
}

func queryInt(c *gin.Context, def int, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := c.GetQuery(k)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return def, true
}

func (h *Handler) ListConversations(c *gin.Context) {
	skip, ok := queryInt(c, 0, "skip", "offset")
	if !ok {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidParam, "skip must be a non-negative integer")
		return
	}
	limit, ok := queryInt(c, defaultPageLimit, "limit")
	if !ok {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidParam, "limit must be a non-negative integer")
		return
	}

	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), skip, limit)
	if err != nil {
		h.fail(c, "list conversations", err)
		return
	}
	common.OK(c, convs)
}

func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.ChatSvc.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get conversation", err)
		return
	}
	common.OK(c, conv)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "invalid json")
		return
	}

	msg, err := h.ChatSvc.SendMessage(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		h.fail(c, "send message", err)
		return
	}
	common.OK(c, msg)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	if err := h.ChatSvc.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete conversation", err)
		return
	}
	common.OK(c, gin.H{"message": "conversation deleted"})
}

// RenameConversation takes the title from a JSON body or, failing that, the title query parameter.
func (h *Handler) RenameConversation(c *gin.Context) {
	var req renameReq
	if err := bindOptionalJSON(c, &req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "invalid json")
		return
	}
	if req.Title == "" {
		req.Title = c.Query("title")
	}

	conv, err := h.ChatSvc.RenameConversation(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		h.fail(c, "rename conversation", err)
		return
	}
	common.OK(c, conv)
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong", "model_ready": h.Ready()})
}

func (h *Handler) Root(c *gin.Context) {
	common.OK(c, gin.H{"message": "Welcome to the conversation history API"})
}

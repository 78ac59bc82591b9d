package handlers

import (
	"github.com/suPer8Hu/chat-history/internal/chat"
	"go.uber.org/zap"
)

type Handler struct {
	ChatSvc *chat.Service
	Log     *zap.Logger
	// Ready reports whether the completion backend finished warming up.
	Ready func() bool
}

func NewHandler(svc *chat.Service, log *zap.Logger, ready func() bool) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{ChatSvc: svc, Log: log, Ready: ready}
}

package routes

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/models"
	"village-chatbot-backend/services"
)

// ChatHandler serves the public chat endpoints and the on/off switch.
type ChatHandler struct {
	router *services.RouterService
	active atomic.Bool
}

func NewChatHandler(router *services.RouterService) *ChatHandler {
	h := &ChatHandler{router: router}
	h.active.Store(true)
	return h
}

// SetupChatRoutes registers the public chat endpoints.
func SetupChatRoutes(r *gin.Engine, h *ChatHandler) {
	r.POST("/ask", h.Ask)
	r.POST("/chatbot/toggle", h.Toggle)
	r.GET("/chatbot/status", h.Status)
}

// Ask answers one question through the full pipeline.
func (h *ChatHandler) Ask(c *gin.Context) {
	if !h.active.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"answer": "Maaf, chatbot sedang dinonaktifkan sementara."})
		return
	}

	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"answer": "Pertanyaan kosong."})
		return
	}

	resp, err := h.router.Ask(c.Request.Context(), req.Question, req.SessionID)
	if err != nil {
		logger.Error("Failed to answer question", "error", err)
		if errors.Is(err, services.ErrClassification) {
			c.JSON(http.StatusBadGateway, gin.H{"answer": "Maaf, saya sedang kesulitan memahami pertanyaan. Coba lagi sebentar lagi."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"answer": "Maaf, terjadi kesalahan pada server."})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Toggle flips the chatbot on/off switch.
func (h *ChatHandler) Toggle(c *gin.Context) {
	for {
		current := h.active.Load()
		if h.active.CompareAndSwap(current, !current) {
			c.JSON(http.StatusOK, gin.H{"active": !current})
			return
		}
	}
}

// Status reports the switch state.
func (h *ChatHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": h.active.Load()})
}

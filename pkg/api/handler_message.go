package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jhjames1/peerchat/pkg/models"
)

// listMessagesHandler handles GET /api/v1/sessions/:id/messages.
func (s *Server) listMessagesHandler(c *gin.Context) {
	messages, err := s.messageService.ListMessages(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	c.JSON(http.StatusOK, &models.MessageListResponse{Messages: messages})
}

// sendMessageHandler handles POST /api/v1/sessions/:id/messages.
func (s *Server) sendMessageHandler(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	msg, err := s.messageService.SendMessage(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// markReadHandler handles POST /api/v1/sessions/:id/read.
func (s *Server) markReadHandler(c *gin.Context) {
	n, err := s.messageService.MarkRead(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &MarkReadResponse{Updated: n})
}

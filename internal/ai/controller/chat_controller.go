package controller

import (
	"encoding/json"

	"codearena/internal/ai/service"
	"codearena/internal/common/http/middleware"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

type ChatController struct {
	chatService *service.ChatService
}

func NewChatController(chatService *service.ChatService) *ChatController {
	return &ChatController{chatService: chatService}
}

type ChatRequest struct {
	Messages    []service.Message `json:"messages"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	TestCases   json.RawMessage   `json:"testCases"`
	StartCode   json.RawMessage   `json:"startCode"`
}

func (h *ChatController) Chat(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	reply, err := h.chatService.Chat(c.Request.Context(), service.ChatInput{
		UserID:      identity.UserID,
		Messages:    req.Messages,
		Title:       req.Title,
		Description: req.Description,
		TestCases:   req.TestCases,
		StartCode:   req.StartCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "success", reply)
}

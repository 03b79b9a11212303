package handler

import (
	"net/http"

	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/service"
	"github.com/gin-gonic/gin"
)

type InboxHandler struct {
	inbox *service.InboxService
}

func NewInboxHandler(inbox *service.InboxService) *InboxHandler {
	return &InboxHandler{inbox: inbox}
}

type SubscribeRequest struct {
	Email  string `json:"email" binding:"required"`
	Source string `json:"source"`
}

type ContactRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required"`
	Subject string `json:"subject"`
	Message string `json:"message" binding:"required"`
}

// Subscribe captures a newsletter signup
func (h *InboxHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if _, err := h.inbox.Subscribe(c.Request.Context(), req.Email, req.Source); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Subscribed"})
}

// Contact stores a contact form message
func (h *InboxHandler) Contact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.inbox.Contact(c.Request.Context(), model.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": msg.ID, "message": "Message received"})
}

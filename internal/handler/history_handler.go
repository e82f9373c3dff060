package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"parley/internal/coord"
	"parley/internal/repo"
)

type HistoryHandler interface {
	GetDirectHistory(c *gin.Context)
	GetGroupHistory(c *gin.Context)
	GetCallHistory(c *gin.Context)
	GetOnlineStatus(c *gin.Context)
}

type historyHandler struct {
	messages    repo.MessageRepository
	calls       repo.CallRepository
	coordinator *coord.Coordinator
}

func NewHistoryHandler(messages repo.MessageRepository, calls repo.CallRepository, coordinator *coord.Coordinator) HistoryHandler {
	return &historyHandler{
		messages:    messages,
		calls:       calls,
		coordinator: coordinator,
	}
}

// GetDirectHistory returns a page of the conversation between two users,
// newest first.
func (h *historyHandler) GetDirectHistory(c *gin.Context) {
	userA := c.Param("userId")
	userB := c.Param("peerId")
	page, ok := parsePage(c)
	if !ok {
		return
	}

	result, err := h.messages.DirectHistory(c.Request.Context(), userA, userB, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get messages",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": result,
	})
}

// GetGroupHistory returns a page of a group's messages, newest first.
func (h *historyHandler) GetGroupHistory(c *gin.Context) {
	groupID := c.Param("groupId")
	page, ok := parsePage(c)
	if !ok {
		return
	}

	result, err := h.messages.GroupHistory(c.Request.Context(), groupID, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get messages",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": result,
	})
}

// GetCallHistory returns a page of calls the user participated in.
func (h *historyHandler) GetCallHistory(c *gin.Context) {
	userID := c.Param("userId")
	page, ok := parsePage(c)
	if !ok {
		return
	}

	result, err := h.calls.CallHistory(c.Request.Context(), userID, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get call history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calls": result,
	})
}

// GetOnlineStatus answers ?users=a,b,c with the live online flag of each.
func (h *historyHandler) GetOnlineStatus(c *gin.Context) {
	raw := c.Query("users")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "users query parameter is required",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses": h.coordinator.OnlineStatus(strings.Split(raw, ",")),
	})
}

func parsePage(c *gin.Context) (int64, bool) {
	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid page number",
		})
		return 0, false
	}
	return pageNumber, true
}

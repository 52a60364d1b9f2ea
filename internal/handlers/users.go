package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// UserHandler lists correspondents with live presence applied.
type UserHandler struct {
	users    repositories.UserRepository
	presence Presence
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, presence Presence) *UserHandler {
	return &UserHandler{users: users, presence: presence}
}

// ListUsers returns every other user with the registry's live online flag
// overlaid on the stored record.
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt("userID")

	users, err := h.users.ListUsers(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	out := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, models.PublicUser{
			ID:       u.ID,
			Name:     u.Name,
			Online:   h.presence.IsOnline(u.ID),
			LastSeen: u.LastSeen,
		})
	}

	c.JSON(http.StatusOK, gin.H{"users": out, "total": len(out)})
}

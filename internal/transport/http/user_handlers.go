package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ParwinderBaidwan/PeepPost/internal/service/conversations"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	svc *conversations.Service
	log *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(svc *conversations.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		svc: svc,
		log: logger,
	}
}

// Profile returns the public profile of a user looked up by username or id.
// GET /api/users/profile/:query
func (h *UserHandlers) Profile(c *gin.Context) {
	profile, err := h.svc.Profile(c.Request.Context(), c.Param("query"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, userFromProfile(profile))
}

// Me returns the caller's own profile.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	profile, err := h.svc.Profile(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, userFromProfile(profile))
}

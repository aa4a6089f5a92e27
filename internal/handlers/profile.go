package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tablehub/api/internal/service"
)

func (h HandlerSet) SetAvatar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "invalid token")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	url, err := h.avatarService.SetAvatar(c.Request.Context(), user, file, header)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAvatar) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("avatar upload failed")
		respondError(c, http.StatusInternalServerError, "internal error")
		return
	}

	respondOK(c, http.StatusOK, gin.H{"avatarUrl": url})
}

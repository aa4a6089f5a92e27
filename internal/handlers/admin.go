package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tablehub/api/internal/ids"
	"tablehub/api/internal/models"
	"tablehub/api/internal/repository"
	"tablehub/api/internal/security"
)

type createAccountRequest struct {
	Name        string   `json:"name" binding:"required"`
	Email       string   `json:"email" binding:"omitempty,email"`
	Password    string   `json:"password" binding:"omitempty,min=8"`
	Role        string   `json:"role" binding:"required"`
	Permissions []string `json:"permissions"`
}

// AdminCreateAccount adds a manager or staff account to the caller's
// restaurant. Email is optional: staff without one cannot log in
// themselves and are reached through account switching.
func (h HandlerSet) AdminCreateAccount(c *gin.Context) {
	caller, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "invalid token")
		return
	}

	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	role := models.UserRole(req.Role)
	if role != models.UserRoleManager && role != models.UserRoleStaff {
		respondError(c, http.StatusBadRequest, "role must be manager or staff")
		return
	}

	user := models.User{
		ID:           ids.New(),
		RestaurantID: caller.RestaurantID,
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		Permissions:  req.Permissions,
		Active:       true,
	}
	if user.Permissions == nil {
		user.Permissions = []string{}
	}

	if req.Email != "" {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if _, err := h.users.FindByEmail(c.Request.Context(), email); err == nil {
			respondError(c, http.StatusConflict, "email already registered")
			return
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			h.log.Error().Err(err).Msg("create account lookup failed")
			respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		if req.Password == "" {
			respondError(c, http.StatusBadRequest, "password required when email is set")
			return
		}
		hash, err := security.HashSecret(req.Password)
		if err != nil {
			h.log.Error().Err(err).Msg("create account hash failed")
			respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		user.Email = &email
		user.PasswordHash = hash
	}

	if err := h.users.Create(c.Request.Context(), user); err != nil {
		h.log.Error().Err(err).Msg("create account failed")
		respondError(c, http.StatusInternalServerError, "internal error")
		return
	}

	respondOK(c, http.StatusCreated, gin.H{"user": toUserResponse(user)})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// AdminSetAccountActive toggles an account's active flag. Deactivation
// blocks future logins and refreshes; access tokens already issued
// stay valid until they expire.
func (h HandlerSet) AdminSetAccountActive(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		respondError(c, http.StatusBadRequest, "account id required")
		return
	}

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.users.SetActive(c.Request.Context(), userID, *req.Active); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "account not found")
			return
		}
		h.log.Error().Err(err).Str("account_id", userID).Msg("set account active failed")
		respondError(c, http.StatusInternalServerError, "internal error")
		return
	}

	// Deactivation also revokes the account's refresh sessions so the
	// lockout takes effect at the next token refresh, not session expiry.
	if !*req.Active {
		if err := h.sessions.DeleteByUser(c.Request.Context(), userID); err != nil {
			h.log.Error().Err(err).Str("account_id", userID).Msg("revoke sessions failed")
		}
	}

	respondOK(c, http.StatusOK, gin.H{"id": userID, "active": *req.Active})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tablehub/api/internal/models"
	"tablehub/api/internal/repository"
	"tablehub/api/internal/service"
)

type userResponse struct {
	ID           string   `json:"id"`
	RestaurantID string   `json:"restaurantId"`
	Name         string   `json:"name"`
	Email        string   `json:"email,omitempty"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
	Active       bool     `json:"active"`
	AvatarURL    string   `json:"avatarUrl,omitempty"`
}

type authData struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken,omitempty"`
}

func toUserResponse(user models.User) userResponse {
	resp := userResponse{
		ID:           user.ID,
		RestaurantID: user.RestaurantID,
		Name:         user.Name,
		Role:         string(user.Role),
		Permissions:  user.Permissions,
		Active:       user.Active,
	}
	if user.Email != nil {
		resp.Email = *user.Email
	}
	if user.AvatarURL != nil {
		resp.AvatarURL = *user.AvatarURL
	}
	return resp
}

type signupRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	RestaurantName string `json:"restaurantName" binding:"required"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Signup(c.Request.Context(), service.SignupInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		RestaurantName: req.RestaurantName,
	})
	if err != nil {
		h.respondAuthError(c, err, "invalid email or password", "signup failed")
		return
	}

	respondOK(c, http.StatusCreated, authData{
		User:         toUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

type loginRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required"`
	StayLoggedIn bool   `json:"stayLoggedIn"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		StayLoggedIn: req.StayLoggedIn,
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		h.respondAuthError(c, err, "invalid email or password", "login failed")
		return
	}

	respondOK(c, http.StatusOK, authData{
		User:         toUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondAuthError(c, err, "invalid token", "refresh failed")
		return
	}

	respondOK(c, http.StatusOK, authData{
		User:        toUserResponse(result.User),
		AccessToken: result.AccessToken,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.respondAuthError(c, err, "invalid token", "logout failed")
		return
	}

	respondOK(c, http.StatusOK, gin.H{"loggedOut": true})
}

// Me returns the identity the auth middleware already attached, plus
// the restaurant it belongs to.
func (h HandlerSet) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "invalid token")
		return
	}

	data := gin.H{"user": toUserResponse(user)}
	restaurant, err := h.restaurants.GetByID(c.Request.Context(), user.RestaurantID)
	if err == nil {
		data["restaurant"] = gin.H{"id": restaurant.ID, "name": restaurant.Name}
	} else if !errors.Is(err, repository.ErrRestaurantNotFound) {
		h.log.Warn().Err(err).Str("restaurant_id", user.RestaurantID).Msg("restaurant lookup failed")
	}

	respondOK(c, http.StatusOK, data)
}

type switchAccountRequest struct {
	TargetEmail string `json:"targetEmail" binding:"required,email"`
}

func (h HandlerSet) SwitchAccount(c *gin.Context) {
	caller, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "invalid token")
		return
	}

	var req switchAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.SwitchAccount(c.Request.Context(), caller, req.TargetEmail)
	if err != nil {
		h.respondAuthError(c, err, "invalid token", "switch account failed")
		return
	}

	respondOK(c, http.StatusOK, authData{
		User:         toUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

type accountGroupResponse struct {
	Role     string         `json:"role"`
	Accounts []userResponse `json:"accounts"`
}

func (h HandlerSet) ListAccounts(c *gin.Context) {
	groups, err := h.authService.ListAvailableAccounts(c.Request.Context())
	if err != nil {
		h.respondAuthError(c, err, "invalid token", "list accounts failed")
		return
	}

	resp := make([]accountGroupResponse, 0, len(groups))
	for _, group := range groups {
		accounts := make([]userResponse, 0, len(group.Accounts))
		for _, account := range group.Accounts {
			accounts = append(accounts, toUserResponse(account))
		}
		resp = append(resp, accountGroupResponse{
			Role:     string(group.Role),
			Accounts: accounts,
		})
	}

	respondOK(c, http.StatusOK, gin.H{"groups": resp})
}

func currentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get("current_user")
	if !exists {
		return models.User{}, false
	}
	user, ok := userVal.(models.User)
	return user, ok
}

// respondAuthError maps service errors onto the response envelope.
// Credential failures share one message per category; the
// detailed cause is logged server-side only.
func (h HandlerSet) respondAuthError(c *gin.Context, err error, unauthorizedMsg string, logMsg string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, unauthorizedMsg)
	case errors.Is(err, service.ErrAccountDisabled):
		respondError(c, http.StatusForbidden, "account disabled")
	case errors.Is(err, service.ErrForbidden):
		respondError(c, http.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrAccountNotFound):
		respondError(c, http.StatusNotFound, "account not found")
	case errors.Is(err, service.ErrTooManyAttempts):
		respondError(c, http.StatusTooManyRequests, "too many attempts, try again later")
	case errors.Is(err, service.ErrEmailTaken):
		respondError(c, http.StatusConflict, "email already registered")
	case errors.Is(err, service.ErrValidation):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(logMsg)
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}

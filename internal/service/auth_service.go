package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablehub/api/internal/config"
	"tablehub/api/internal/ids"
	"tablehub/api/internal/models"
	"tablehub/api/internal/repository"
	"tablehub/api/internal/security"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// every refresh-token failure; callers must not be able to tell
	// them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountNotFound    = errors.New("account not found")
	ErrForbidden          = errors.New("forbidden")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrEmailTaken         = errors.New("email already registered")
	ErrValidation         = errors.New("missing required fields")
)

// UserStore, SessionStore and RestaurantStore are satisfied by the pgx
// repositories; the flows only need this slice of them.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	ListActive(ctx context.Context) ([]models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindByIndex(ctx context.Context, index string, now time.Time) ([]models.Session, error)
	FindLegacy(ctx context.Context, now time.Time) ([]models.Session, error)
	UpgradeIndex(ctx context.Context, id string, index string) error
	DeleteByID(ctx context.Context, id string) error
}

type RestaurantStore interface {
	CreateWithOwner(ctx context.Context, restaurant models.Restaurant, owner models.User) error
}

type AuthService struct {
	users       UserStore
	sessions    SessionStore
	restaurants RestaurantStore
	cache       *redis.Client
	cfg         *config.AppConfig
	log         zerolog.Logger
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	restaurants RestaurantStore,
	cache *redis.Client,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		sessions:    sessions,
		restaurants: restaurants,
		cache:       cache,
		cfg:         cfg,
		log:         log,
	}
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
}

type SignupInput struct {
	Name           string
	Email          string
	Password       string
	RestaurantName string
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (AuthResult, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	input.RestaurantName = strings.TrimSpace(input.RestaurantName)

	if input.Name == "" || input.Email == "" || input.Password == "" || input.RestaurantName == "" {
		return AuthResult{}, fmt.Errorf("%w: name, email, password and restaurant name", ErrValidation)
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashSecret(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	restaurant := models.Restaurant{
		ID:   ids.New(),
		Name: input.RestaurantName,
	}
	owner := models.User{
		ID:           ids.New(),
		RestaurantID: restaurant.ID,
		Name:         input.Name,
		Email:        &input.Email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleOwner,
		Permissions:  []string{models.PermissionAll},
		Active:       true,
	}

	if err := s.restaurants.CreateWithOwner(ctx, restaurant, owner); err != nil {
		return AuthResult{}, err
	}

	s.log.Info().Str("user_id", owner.ID).Str("restaurant_id", restaurant.ID).Msg("restaurant signed up")

	return s.issueSession(ctx, owner, s.cfg.Security.RefreshTTL)
}

type LoginInput struct {
	Email        string
	Password     string
	StayLoggedIn bool
	IPAddress    string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = normalizeEmail(input.Email)

	if s.loginLocked(ctx, input.Email, input.IPAddress) {
		return AuthResult{}, ErrTooManyAttempts
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.noteLoginFailure(ctx, input.Email, input.IPAddress)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if len(user.PasswordHash) == 0 {
		return AuthResult{}, ErrInvalidCredentials
	}

	if !user.Active {
		return AuthResult{}, ErrAccountDisabled
	}

	ok, err := security.VerifySecret(input.Password, user.PasswordHash)
	if err != nil {
		return AuthResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.noteLoginFailure(ctx, input.Email, input.IPAddress)
		return AuthResult{}, ErrInvalidCredentials
	}

	s.clearLoginFailures(ctx, input.Email, input.IPAddress)

	ttl := s.cfg.Security.RefreshTTL
	if input.StayLoggedIn {
		ttl = s.cfg.Security.RefreshTTLRemember
	}

	return s.issueSession(ctx, user, ttl)
}

// Refresh exchanges a valid refresh token for a new access token bound
// to the same session. The session itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	session, err := s.resolveSession(ctx, refreshToken)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if !user.Active {
		return AuthResult{}, ErrAccountDisabled
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTSecret,
		user.ID,
		user.RestaurantID,
		session.ID,
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken: accessToken,
		User:        user,
	}, nil
}

// Logout deletes the session matching the presented refresh token.
// An unknown token is success: the caller already isn't logged in.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.resolveSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil
		}
		return err
	}
	return s.sessions.DeleteByID(ctx, session.ID)
}

// SwitchAccount mints a brand-new session and access token for the
// target identity without any credential of the target. The caller's
// role is checked here, inside the flow, so the precondition holds
// even if the route wiring changes. Never expose this without the
// caller having been authenticated first.
func (s *AuthService) SwitchAccount(ctx context.Context, caller models.User, targetEmail string) (AuthResult, error) {
	if !caller.CanImpersonate() {
		return AuthResult{}, ErrForbidden
	}

	target, err := s.users.FindByEmail(ctx, normalizeEmail(targetEmail))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrAccountNotFound
		}
		return AuthResult{}, err
	}
	if !target.Active {
		return AuthResult{}, ErrAccountDisabled
	}

	s.log.Info().
		Str("caller_id", caller.ID).
		Str("target_id", target.ID).
		Msg("account switch")

	return s.issueSession(ctx, target, s.cfg.Security.RefreshTTL)
}

type AccountGroup struct {
	Role     models.UserRole
	Accounts []models.User
}

var accountGroupOrder = []models.UserRole{
	models.UserRolePlatformAdmin,
	models.UserRoleAdmin,
	models.UserRoleOwner,
	models.UserRoleManager,
	models.UserRoleStaff,
}

// ListAvailableAccounts is a read-only projection of active users
// grouped by role; it never touches sessions.
func (s *AuthService) ListAvailableAccounts(ctx context.Context) ([]AccountGroup, error) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	byRole := make(map[models.UserRole][]models.User, len(accountGroupOrder))
	for _, user := range users {
		byRole[user.Role] = append(byRole[user.Role], user)
	}

	groups := make([]AccountGroup, 0, len(byRole))
	for _, role := range accountGroupOrder {
		if accounts, ok := byRole[role]; ok {
			groups = append(groups, AccountGroup{Role: role, Accounts: accounts})
		}
	}
	return groups, nil
}

func (s *AuthService) issueSession(ctx context.Context, user models.User, ttl time.Duration) (AuthResult, error) {
	refreshToken, err := security.GenerateRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}

	tokenHash, err := security.HashSecret(refreshToken)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash refresh token: %w", err)
	}
	index := security.TokenIndex(refreshToken)

	session := models.Session{
		ID:         ids.New(),
		UserID:     user.ID,
		TokenHash:  tokenHash,
		TokenIndex: &index,
		ExpiresAt:  time.Now().UTC().Add(ttl),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, err
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTSecret,
		user.ID,
		user.RestaurantID,
		session.ID,
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// resolveSession locates the session a refresh token belongs to.
//
//  1. Compute the fast index and look up unexpired matches.
//  2. Verify each candidate against its slow hash; an index hit is
//     never trusted on its own.
//  3. Fall back to scanning unexpired legacy rows that predate the
//     index column; on a match, backfill the index so the next lookup
//     for this session takes the fast path.
//  4. Otherwise the token is invalid. Not-found, expired and
//     wrong-token all collapse into the same error.
func (s *AuthService) resolveSession(ctx context.Context, refreshToken string) (models.Session, error) {
	if refreshToken == "" {
		return models.Session{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	index := security.TokenIndex(refreshToken)

	candidates, err := s.sessions.FindByIndex(ctx, index, now)
	if err != nil {
		return models.Session{}, err
	}
	for _, candidate := range candidates {
		ok, err := security.VerifySecret(refreshToken, candidate.TokenHash)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", candidate.ID).Msg("unreadable session token hash")
			continue
		}
		if ok {
			return candidate, nil
		}
	}

	legacy, err := s.sessions.FindLegacy(ctx, now)
	if err != nil {
		return models.Session{}, err
	}
	for _, candidate := range legacy {
		ok, err := security.VerifySecret(refreshToken, candidate.TokenHash)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", candidate.ID).Msg("unreadable session token hash")
			continue
		}
		if !ok {
			continue
		}
		if err := s.sessions.UpgradeIndex(ctx, candidate.ID, index); err != nil {
			s.log.Warn().Err(err).Str("session_id", candidate.ID).Msg("session index backfill failed")
		}
		candidate.TokenIndex = &index
		return candidate, nil
	}

	return models.Session{}, ErrInvalidCredentials
}

func (s *AuthService) loginLocked(ctx context.Context, email string, ip string) bool {
	if s.cache == nil {
		return false
	}
	count, err := s.cache.Get(ctx, loginFailKey(email, ip)).Int()
	if err != nil {
		return false
	}
	return count >= s.cfg.Security.LoginMaxAttempts
}

func (s *AuthService) noteLoginFailure(ctx context.Context, email string, ip string) {
	if s.cache == nil {
		return
	}
	key := loginFailKey(email, ip)
	pipe := s.cache.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.cfg.Security.LoginLockout)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("record login failure")
	}
}

func (s *AuthService) clearLoginFailures(ctx context.Context, email string, ip string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, loginFailKey(email, ip)).Err(); err != nil {
		s.log.Warn().Err(err).Msg("clear login failures")
	}
}

func loginFailKey(email string, ip string) string {
	return fmt.Sprintf("login:fail:%s:%s", email, ip)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

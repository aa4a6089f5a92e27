package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tablehub/api/internal/config"
	"tablehub/api/internal/ids"
	"tablehub/api/internal/models"
	"tablehub/api/internal/repository"
	"tablehub/api/internal/security"
)

type fakeUserStore struct {
	users map[string]models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]models.User)}
}

func (f *fakeUserStore) add(user models.User) {
	f.users[user.ID] = user
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, user := range f.users {
		if user.Email != nil && strings.EqualFold(*user.Email, email) {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) ListActive(_ context.Context) ([]models.User, error) {
	var out []models.User
	for _, user := range f.users {
		if user.Active {
			out = append(out, user)
		}
	}
	return out, nil
}

type fakeSessionStore struct {
	rows        map[string]models.Session
	legacyScans int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{rows: make(map[string]models.Session)}
}

func (f *fakeSessionStore) Create(_ context.Context, session models.Session) error {
	f.rows[session.ID] = session
	return nil
}

func (f *fakeSessionStore) FindByIndex(_ context.Context, index string, now time.Time) ([]models.Session, error) {
	var out []models.Session
	for _, session := range f.rows {
		if session.TokenIndex != nil && *session.TokenIndex == index && session.ExpiresAt.After(now) {
			out = append(out, session)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) FindLegacy(_ context.Context, now time.Time) ([]models.Session, error) {
	f.legacyScans++
	var out []models.Session
	for _, session := range f.rows {
		if session.TokenIndex == nil && session.ExpiresAt.After(now) {
			out = append(out, session)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) UpgradeIndex(_ context.Context, id string, index string) error {
	session, ok := f.rows[id]
	if !ok || session.TokenIndex != nil {
		return nil
	}
	session.TokenIndex = &index
	f.rows[id] = session
	return nil
}

func (f *fakeSessionStore) DeleteByID(_ context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

type fakeRestaurantStore struct {
	users       *fakeUserStore
	restaurants map[string]models.Restaurant
}

func (f *fakeRestaurantStore) CreateWithOwner(_ context.Context, restaurant models.Restaurant, owner models.User) error {
	if f.restaurants == nil {
		f.restaurants = make(map[string]models.Restaurant)
	}
	f.restaurants[restaurant.ID] = restaurant
	f.users.add(owner)
	return nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTSecret:          "test-signing-secret",
			JWTAccessTTL:       time.Hour,
			RefreshTTL:         time.Hour,
			RefreshTTLRemember: 24 * time.Hour,
			LoginMaxAttempts:   10,
			LoginLockout:       15 * time.Minute,
		},
	}
}

func newTestService(t *testing.T) (*AuthService, *fakeUserStore, *fakeSessionStore) {
	t.Helper()
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	restaurants := &fakeRestaurantStore{users: users}
	svc := NewAuthService(users, sessions, restaurants, nil, testConfig(), zerolog.Nop())
	return svc, users, sessions
}

func seedUser(t *testing.T, users *fakeUserStore, email string, password string, role models.UserRole, active bool) models.User {
	t.Helper()
	hash, err := security.HashSecret(password)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	user := models.User{
		ID:           ids.New(),
		RestaurantID: ids.New(),
		Name:         "Seeded User",
		Email:        &email,
		PasswordHash: hash,
		Role:         role,
		Permissions:  []string{models.PermissionAll},
		Active:       active,
	}
	users.add(user)
	return user
}

func TestLogin_TokenCarriesSubject(t *testing.T) {
	svc, users, _ := newTestService(t)
	owner := seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	result, err := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "secret-password"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", result)
	}

	claims, err := security.ParseAccessToken(result.AccessToken, "test-signing-secret")
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != owner.ID {
		t.Fatalf("token subject %q, want %q", claims.UserID, owner.ID)
	}
	if claims.RestaurantID != owner.RestaurantID {
		t.Fatalf("token restaurant %q, want %q", claims.RestaurantID, owner.RestaurantID)
	}
}

func TestLogin_UnknownEmailAndWrongPasswordCollapse(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	_, errUnknown := svc.Login(context.Background(), LoginInput{Email: "nobody@b.com", Password: "secret-password"})
	_, errWrongPw := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "not-the-password"})

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", errWrongPw)
	}
}

func TestLogin_EmailCaseInsensitive(t *testing.T) {
	svc, users, _ := newTestService(t)
	owner := seedUser(t, users, "user@example.com", "secret-password", models.UserRoleOwner, true)

	result, err := svc.Login(context.Background(), LoginInput{Email: "USER@Example.com", Password: "secret-password"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.User.ID != owner.ID {
		t.Fatalf("resolved user %q, want %q", result.User.ID, owner.ID)
	}
}

func TestLogin_DisabledAccountForbiddenEvenWithCorrectPassword(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, false)

	_, err := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "secret-password"})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLogin_NoPasswordHashIsUnauthorized(t *testing.T) {
	svc, users, _ := newTestService(t)
	email := "sso@b.com"
	users.add(models.User{
		ID:     ids.New(),
		Email:  &email,
		Role:   models.UserRoleStaff,
		Active: true,
	})

	_, err := svc.Login(context.Background(), LoginInput{Email: email, Password: "anything"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_StayLoggedInExtendsSessionTTL(t *testing.T) {
	svc, users, sessions := newTestService(t)
	seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	if _, err := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "secret-password", StayLoggedIn: true}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	for _, session := range sessions.rows {
		remaining := time.Until(session.ExpiresAt)
		if remaining < 23*time.Hour {
			t.Fatalf("expected ~24h session, got %v remaining", remaining)
		}
	}
}

func TestRefresh_RepeatableAndKeepsSessionID(t *testing.T) {
	svc, users, sessions := newTestService(t)
	seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	login, err := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "secret-password"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var sessionIDs []string
	for i := 0; i < 3; i++ {
		result, err := svc.Refresh(context.Background(), login.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh #%d: %v", i, err)
		}
		claims, err := security.ParseAccessToken(result.AccessToken, "test-signing-secret")
		if err != nil {
			t.Fatalf("ParseAccessToken: %v", err)
		}
		sessionIDs = append(sessionIDs, claims.SessionID)
	}

	for _, id := range sessionIDs[1:] {
		if id != sessionIDs[0] {
			t.Fatalf("refresh rotated session id: %v", sessionIDs)
		}
	}
	if len(sessions.rows) != 1 {
		t.Fatalf("refresh must not create rows, have %d", len(sessions.rows))
	}
}

func TestRefresh_ExpiredSessionUnauthorized(t *testing.T) {
	svc, users, sessions := newTestService(t)
	user := seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	token, err := security.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	hash, err := security.HashSecret(token)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	index := security.TokenIndex(token)
	sessions.rows["expired"] = models.Session{
		ID:         "expired",
		UserID:     user.ID,
		TokenHash:  hash,
		TokenIndex: &index,
		ExpiresAt:  time.Now().Add(-time.Minute),
	}

	if _, err := svc.Refresh(context.Background(), token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for expired session, got %v", err)
	}
}

func TestRefresh_RandomTokenUnauthorized(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	random, err := security.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), random); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefresh_LegacySessionUpgradedOnce(t *testing.T) {
	svc, users, sessions := newTestService(t)
	user := seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	token, err := security.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	hash, err := security.HashSecret(token)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	sessions.rows["legacy"] = models.Session{
		ID:        "legacy",
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	// First refresh walks the legacy scan and backfills the index.
	if _, err := svc.Refresh(context.Background(), token); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if sessions.legacyScans != 1 {
		t.Fatalf("expected one legacy scan, got %d", sessions.legacyScans)
	}
	upgraded := sessions.rows["legacy"]
	if upgraded.TokenIndex == nil || *upgraded.TokenIndex != security.TokenIndex(token) {
		t.Fatalf("legacy row not upgraded: %+v", upgraded)
	}

	// Second refresh must hit the fast-index path only.
	if _, err := svc.Refresh(context.Background(), token); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if sessions.legacyScans != 1 {
		t.Fatalf("legacy scan ran again after upgrade: %d", sessions.legacyScans)
	}
	if len(sessions.rows) != 1 {
		t.Fatalf("upgrade must not duplicate rows, have %d", len(sessions.rows))
	}
}

func TestLogout_ThenRefreshUnauthorized(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	login, err := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "secret-password"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(context.Background(), login.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after logout, got %v", err)
	}
}

func TestLogout_UnknownTokenIsSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)

	random, err := security.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if err := svc.Logout(context.Background(), random); err != nil {
		t.Fatalf("Logout of unknown token should succeed, got %v", err)
	}
}

func TestDeactivation_BlocksRefreshButNotIssuedTokens(t *testing.T) {
	svc, users, _ := newTestService(t)
	owner := seedUser(t, users, "a@b.com", "secret-password", models.UserRoleOwner, true)

	login, err := svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "secret-password"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	owner.Active = false
	users.add(owner)

	if _, err := svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled on refresh, got %v", err)
	}

	// The already-issued access token is stateless and stays
	// verifiable until its natural expiry.
	if _, err := security.ParseAccessToken(login.AccessToken, "test-signing-secret"); err != nil {
		t.Fatalf("issued access token should remain verifiable: %v", err)
	}
}

func TestSignup_CreatesOwnerWithAllPermissions(t *testing.T) {
	svc, users, _ := newTestService(t)

	result, err := svc.Signup(context.Background(), SignupInput{
		Name:           "Pat Owner",
		Email:          "Pat@Example.com",
		Password:       "secret-password",
		RestaurantName: "Pat's Diner",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if result.User.Role != models.UserRoleOwner {
		t.Fatalf("expected owner role, got %q", result.User.Role)
	}
	if !result.User.HasPermission("anything-at-all") {
		t.Fatalf("owner should hold the all-permissions sentinel")
	}
	if result.User.Email == nil || *result.User.Email != "pat@example.com" {
		t.Fatalf("email should be normalized, got %v", result.User.Email)
	}

	stored, err := users.FindByEmail(context.Background(), "pat@example.com")
	if err != nil {
		t.Fatalf("owner not persisted: %v", err)
	}
	if stored.RestaurantID == "" {
		t.Fatalf("owner missing restaurant id")
	}
}

func TestSignup_MissingFields(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Signup(context.Background(), SignupInput{Email: "a@b.com"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSwitchAccount_RequiresPrivilegedCaller(t *testing.T) {
	svc, users, _ := newTestService(t)
	staff := seedUser(t, users, "staff@b.com", "secret-password", models.UserRoleStaff, true)
	seedUser(t, users, "target@b.com", "secret-password", models.UserRoleManager, true)

	_, err := svc.SwitchAccount(context.Background(), staff, "target@b.com")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff caller, got %v", err)
	}
}

func TestSwitchAccount_MintsSessionForTarget(t *testing.T) {
	svc, users, sessions := newTestService(t)
	admin := seedUser(t, users, "admin@b.com", "secret-password", models.UserRoleAdmin, true)
	target := seedUser(t, users, "target@b.com", "secret-password", models.UserRoleStaff, true)

	result, err := svc.SwitchAccount(context.Background(), admin, "target@b.com")
	if err != nil {
		t.Fatalf("SwitchAccount: %v", err)
	}

	claims, err := security.ParseAccessToken(result.AccessToken, "test-signing-secret")
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != target.ID {
		t.Fatalf("token subject %q, want target %q", claims.UserID, target.ID)
	}
	if result.RefreshToken == "" {
		t.Fatalf("expected a fresh refresh token for the target")
	}
	if len(sessions.rows) != 1 {
		t.Fatalf("expected one new session row, have %d", len(sessions.rows))
	}
}

func TestSwitchAccount_InactiveTarget(t *testing.T) {
	svc, users, _ := newTestService(t)
	admin := seedUser(t, users, "admin@b.com", "secret-password", models.UserRoleAdmin, true)
	seedUser(t, users, "target@b.com", "secret-password", models.UserRoleStaff, false)

	if _, err := svc.SwitchAccount(context.Background(), admin, "target@b.com"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestListAvailableAccounts_GroupsActiveByRole(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "admin@b.com", "secret-password", models.UserRoleAdmin, true)
	seedUser(t, users, "owner@b.com", "secret-password", models.UserRoleOwner, true)
	seedUser(t, users, "staff@b.com", "secret-password", models.UserRoleStaff, true)
	seedUser(t, users, "gone@b.com", "secret-password", models.UserRoleStaff, false)

	groups, err := svc.ListAvailableAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAvailableAccounts: %v", err)
	}

	total := 0
	for _, group := range groups {
		for _, account := range group.Accounts {
			total++
			if !account.Active {
				t.Fatalf("inactive account %q listed", account.ID)
			}
			if account.Role != group.Role {
				t.Fatalf("account %q in wrong group %q", account.ID, group.Role)
			}
		}
	}
	if total != 3 {
		t.Fatalf("expected 3 active accounts, got %d", total)
	}
}

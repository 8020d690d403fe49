package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nowshin-108/capstone/internal/config"
	"github.com/nowshin-108/capstone/internal/middleware"
	"github.com/nowshin-108/capstone/internal/model"
	"github.com/nowshin-108/capstone/internal/repository"
	"github.com/nowshin-108/capstone/internal/utils"
)

const authTimeout = 5 * time.Second

type userStore interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

type refreshStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Consume(ctx context.Context, tokenHash string) (uint64, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler issues the access tokens the bidding endpoints require.
type AuthHandler struct {
	cfg    config.Config
	users  userStore
	tokens refreshStore
}

func NewAuthHandler(cfg config.Config, users *repository.UserRepo, tokens *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, tokens: tokens}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenPair is returned by register, login and refresh.  The refresh token
// is sent raw exactly once; only its hash is kept.
type tokenPair struct {
	UserID           uint64    `json:"user_id"`
	Role             string    `json:"role"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func bindCredentials(c echo.Context) (credentials, bool) {
	var in credentials
	if err := c.Bind(&in); err != nil {
		return in, false
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return in, in.Email != "" && in.Password != ""
}

// Register creates a passenger account and signs it in.  Admin accounts
// are provisioned out of band.
func (h *AuthHandler) Register(c echo.Context) error {
	in, ok := bindCredentials(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	id, err := h.users.Create(ctx, in.Email, in.Password, model.RolePassenger, h.cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}
	if errors.Is(err, utils.ErrWeakPassword) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create account"})
	}
	return h.signIn(ctx, c, http.StatusCreated, id, model.RolePassenger)
}

// Login checks the password and signs the user in.
func (h *AuthHandler) Login(c echo.Context) error {
	in, ok := bindCredentials(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	u, err := h.users.GetByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up account"})
	}
	// Unknown email and wrong password look the same to the caller.
	if err != nil || !utils.VerifyPassword(u.PasswordHash, in.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.signIn(ctx, c, http.StatusOK, u.ID, u.Role)
}

// Refresh spends the presented refresh token and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var in refreshBody
	_ = c.Bind(&in)
	raw := strings.TrimSpace(in.RefreshToken)
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	id, err := h.tokens.Consume(ctx, utils.HashRefreshRaw(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not rotate refresh token"})
	}
	u, err := h.users.GetByID(ctx, id)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	return h.signIn(ctx, c, http.StatusOK, u.ID, u.Role)
}

// Logout revokes the refresh token in the body.  With only a bearer token
// it revokes every refresh token of the caller.
func (h *AuthHandler) Logout(c echo.Context) error {
	var in refreshBody
	_ = c.Bind(&in)
	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	if raw := strings.TrimSpace(in.RefreshToken); raw != "" {
		err := h.tokens.Revoke(ctx, utils.HashRefreshRaw(raw))
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	bearer, found := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if !found {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token or bearer token required"})
	}
	claims, err := utils.ParseAccessToken(h.cfg.JWTSecret, bearer)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	if err := h.tokens.RevokeAllForUser(ctx, claims.UserID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me echoes the identity carried by the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	id, role, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": id, "role": role})
}

func (h *AuthHandler) signIn(ctx context.Context, c echo.Context, status int, userID uint64, role string) error {
	access, err := utils.NewAccessToken(h.cfg.JWTSecret, userID, role, h.cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not sign access token"})
	}
	refresh, err := utils.NewRefreshToken(h.cfg.RefreshTTLDays)
	if err == nil {
		err = h.tokens.StoreRefresh(ctx, userID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue refresh token"})
	}
	return c.JSON(status, tokenPair{
		UserID:           userID,
		Role:             role,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
	})
}

package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nowshin-108/capstone/internal/config"
	"github.com/nowshin-108/capstone/internal/handler"
	"github.com/nowshin-108/capstone/internal/repository"
	"github.com/nowshin-108/capstone/internal/router"
	"github.com/nowshin-108/capstone/internal/utils"
)

func authServer(t *testing.T) (*echo.Echo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 30, BcryptCost: bcrypt.MinCost}
	e := echo.New()
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db)), secret)
	return e, mock
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func userRow(hash string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}).
		AddRow(5, "ana@example.com", hash, "PASSENGER", true, now, now)
}

func TestLogin(t *testing.T) {
	e, mock := authServer(t)
	hash, err := utils.HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email=").
		WithArgs("ana@example.com").
		WillReturnRows(userRow(hash))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := post(e, "/v1/auth/login", `{"email":" Ana@Example.com ","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		UserID       uint64 `json:"user_id"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(5), body.UserID)
	assert.Len(t, body.RefreshToken, 96)
	claims, err := utils.ParseAccessToken(secret, body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "PASSENGER", claims.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginWrongPassword(t *testing.T) {
	e, mock := authServer(t)
	hash, err := utils.HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email=").WillReturnRows(userRow(hash))

	rec := post(e, "/v1/auth/login", `{"email":"ana@example.com","password":"battery staple"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	e, mock := authServer(t)
	rec := post(e, "/v1/auth/register", `{"email":"ana@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRejectsSpentToken(t *testing.T) {
	e, mock := authServer(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id FROM refresh_tokens").
		WithArgs(utils.HashRefreshRaw("raw-token")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	rec := post(e, "/v1/auth/refresh", `{"refresh_token":"raw-token"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRotates(t *testing.T) {
	e, mock := authServer(t)
	hash := utils.HashRefreshRaw("raw-token")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id FROM refresh_tokens").
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(5))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs(hash).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(5).
		WillReturnRows(userRow("x"))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	rec := post(e, "/v1/auth/refresh", `{"refresh_token":"raw-token"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogoutUnknownRefresh(t *testing.T) {
	e, mock := authServer(t)
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs(utils.HashRefreshRaw("gone")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := post(e, "/v1/auth/logout", `{"refresh_token":"gone"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMe(t *testing.T) {
	e, _ := authServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 5, "ADMIN"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":5,"role":"ADMIN"}`, rec.Body.String())
}

package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weakapi/internal/auth"
	"weakapi/internal/cache"
	"weakapi/internal/config"
	apperrors "weakapi/internal/errors"
	"weakapi/internal/handler"
	"weakapi/internal/logging"
	"weakapi/internal/metrics"
	"weakapi/internal/render"
	"weakapi/internal/repository"
	"weakapi/internal/service"
)

const testSecret = "test-secret"

type testServer struct {
	e        *echo.Echo
	store    *repository.MemoryStore
	accounts service.AccountService
}

func newTestServer(t *testing.T, policy config.Policy) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	log := logging.Discard()
	m := metrics.New()
	tokens := auth.NewJWTService(testSecret, auth.DefaultTokenExpiry)

	accounts := service.NewAccountService(
		store.Users(),
		auth.NewPasswordHasher(4),
		tokens,
		cache.Disabled(),
		m,
		policy,
		log,
	)
	notes := service.NewNoteService(store.Notes(), render.New(policy.UnsafeNoteRendering), policy, log)

	e := echo.New()
	Register(
		e,
		log,
		m,
		auth.NewGuard(tokens, accounts),
		handler.NewUserHandler(accounts),
		handler.NewNoteHandler(notes),
	)
	return &testServer{e: e, store: store, accounts: accounts}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signup(t *testing.T, username string, admin bool) {
	t.Helper()
	body := map[string]interface{}{"username": username, "password": "password123"}
	if admin {
		body["is_admin"] = true
	}
	rec := s.do(t, http.MethodPost, "/user/signup", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/user/login", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handler.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (s *testServer) account(t *testing.T, username string, admin bool) string {
	t.Helper()
	s.signup(t, username, admin)
	return s.login(t, username)
}

func (s *testServer) listNotes(t *testing.T, token, query string) []handler.NoteResponse {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/notes"+query, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var notes []handler.NoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
	return notes
}

func (s *testServer) createNote(t *testing.T, token, title, description string) uuid.UUID {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/notes/create", token, map[string]string{
		"title":       title,
		"description": description,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, n := range s.listNotes(t, token, "") {
		if n.Title == title {
			return n.ID
		}
	}
	t.Fatalf("note %q not listed after create", title)
	return uuid.Nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.Detail {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	assert.Equal(t, apperrors.UserMessage, resp.Detail.UserMsg)
	return resp.Detail
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())

	rec := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"msg":"Welcome"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderOrigin, "http://attacker.example")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())

	rec := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	decodeError(t, rec)
}

func TestSignup(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())

	rec := s.do(t, http.MethodPost, "/user/signup", "", map[string]string{"username": "monsec", "password": "pw"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"msg":"Account created"}`, rec.Body.String())

	t.Run("duplicate normalized username", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/user/signup", "", map[string]string{"username": "MonSec", "password": "pw"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Username already taken", decodeError(t, rec).Msg)
		assert.Equal(t, 1, s.store.CountUsersByUsername("monsec"))
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/user/signup", "", `{"username":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decodeError(t, rec).Msg)
	})

	t.Run("missing field", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/user/signup", "", map[string]string{"username": "someone"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).Msg, "Password")
	})
}

func TestSignupMassAssignment(t *testing.T) {
	t.Run("admin flag trusted", func(t *testing.T) {
		s := newTestServer(t, config.VulnerablePolicy())
		s.signup(t, "mallory", true)

		user, err := s.store.Users().FindByUsername(context.Background(), "mallory")
		require.NoError(t, err)
		assert.True(t, user.IsAdmin)
	})

	t.Run("admin flag ignored", func(t *testing.T) {
		policy := config.VulnerablePolicy()
		policy.TrustSignupAdminFlag = false
		s := newTestServer(t, policy)
		s.signup(t, "mallory", true)

		user, err := s.store.Users().FindByUsername(context.Background(), "mallory")
		require.NoError(t, err)
		assert.False(t, user.IsAdmin)
	})
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	s.signup(t, "monsec", false)

	token := s.login(t, "MONSEC")
	assert.Len(t, strings.Split(token, "."), 3)

	wrongPassword := s.do(t, http.MethodPost, "/user/login", "", map[string]string{"username": "monsec", "password": "nope"})
	unknownUser := s.do(t, http.MethodPost, "/user/login", "", map[string]string{"username": "ghost", "password": "password123"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	assert.Equal(t, "Invalid username and/or password", decodeError(t, wrongPassword).Msg)
}

func TestTokenFailures(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	s.signup(t, "monsec", false)
	user, err := s.store.Users().FindByUsername(context.Background(), "monsec")
	require.NoError(t, err)

	sign := func(claims auth.Claims, secret string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	now := time.Now()
	expired := sign(auth.Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.Add(-10 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-5 * time.Minute)),
		},
	}, testSecret)
	forged := sign(auth.Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}, "other-secret")

	tests := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{name: "no header", status: http.StatusUnauthorized, msg: "Not authenticated"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, msg: "Not authenticated"},
		{name: "garbage", header: "Bearer not-a-token", status: http.StatusUnauthorized, msg: "Invalid token"},
		{name: "forged signature", header: "Bearer " + forged, status: http.StatusUnauthorized, msg: "Invalid token"},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized, msg: "Signature has expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/notes", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			s.e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decodeError(t, rec).Msg)
		})
	}
}

func TestDeletedUserTokenRejected(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	token := s.account(t, "monsec", false)
	s.createNote(t, token, "t", "d")

	user, err := s.store.Users().FindByUsername(context.Background(), "monsec")
	require.NoError(t, err)
	require.NoError(t, s.accounts.DeleteUser(context.Background(), user.ID))
	assert.Equal(t, 0, s.store.CountNotes())

	rec := s.do(t, http.MethodGet, "/notes", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "User does not exist", decodeError(t, rec).Msg)
}

func TestNotesCreateAndList(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	alice := s.account(t, "alice", false)
	bob := s.account(t, "bob", false)

	rec := s.do(t, http.MethodPost, "/notes/create", alice, map[string]string{"title": "diary", "description": "secret"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"msg":"Note created"}`, rec.Body.String())

	own := s.listNotes(t, alice, "")
	require.Len(t, own, 1)
	assert.Equal(t, "secret", own[0].Description)

	assert.Empty(t, s.listNotes(t, bob, ""), "no override means only the caller's notes")

	rec = s.do(t, http.MethodGet, "/notes?user-id=not-a-uuid", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decodeError(t, rec)
}

func TestNotesListOverride(t *testing.T) {
	aliceID := func(s *testServer) string {
		u, err := s.store.Users().FindByUsername(context.Background(), "alice")
		require.NoError(t, err)
		return u.ID.String()
	}

	t.Run("user-id reads another account", func(t *testing.T) {
		s := newTestServer(t, config.VulnerablePolicy())
		alice := s.account(t, "alice", false)
		bob := s.account(t, "bob", false)
		s.createNote(t, alice, "diary", "secret")

		notes := s.listNotes(t, bob, "?user-id="+aliceID(s))
		require.Len(t, notes, 1)
		assert.Equal(t, "secret", notes[0].Description)
	})

	t.Run("strict listing ignores user-id", func(t *testing.T) {
		policy := config.VulnerablePolicy()
		policy.AllowNotesUserOverride = false
		s := newTestServer(t, policy)
		alice := s.account(t, "alice", false)
		bob := s.account(t, "bob", false)
		s.createNote(t, alice, "diary", "secret")

		assert.Empty(t, s.listNotes(t, bob, "?user-id="+aliceID(s)))
	})
}

func TestNoteViewIDOR(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	alice := s.account(t, "alice", false)
	bob := s.account(t, "bob", false)
	id := s.createNote(t, alice, "diary", "secret")

	rec := s.do(t, http.MethodGet, "/notes/"+id.String(), bob, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML)
	assert.Contains(t, rec.Body.String(), "secret")
}

func TestNoteViewAdminGate(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	root := s.account(t, "root", true)
	other := s.account(t, "other-admin", true)
	user := s.account(t, "user", false)
	id := s.createNote(t, root, "flag", "MONSEC{test}")

	rec := s.do(t, http.MethodGet, "/notes/"+id.String(), user, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User is not authorized", decodeError(t, rec).Msg)

	rec = s.do(t, http.MethodGet, "/notes/"+id.String(), other, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "MONSEC{test}")
}

func TestNoteViewTemplateInjection(t *testing.T) {
	t.Run("unsafe rendering evaluates", func(t *testing.T) {
		s := newTestServer(t, config.VulnerablePolicy())
		token := s.account(t, "alice", false)
		id := s.createNote(t, token, "calc", "{{ mul 7 7 }}")

		rec := s.do(t, http.MethodGet, "/notes/"+id.String(), token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "49")
		assert.NotContains(t, rec.Body.String(), "{{ mul 7 7 }}")
	})

	t.Run("safe rendering keeps markers", func(t *testing.T) {
		policy := config.VulnerablePolicy()
		policy.UnsafeNoteRendering = false
		s := newTestServer(t, policy)
		token := s.account(t, "alice", false)
		id := s.createNote(t, token, "calc", "{{ mul 7 7 }}")

		rec := s.do(t, http.MethodGet, "/notes/"+id.String(), token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "{{ mul 7 7 }}")
	})

	t.Run("broken template", func(t *testing.T) {
		s := newTestServer(t, config.VulnerablePolicy())
		token := s.account(t, "alice", false)
		id := s.createNote(t, token, "t", "{{ end }}")

		rec := s.do(t, http.MethodGet, "/notes/"+id.String(), token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		decodeError(t, rec)
	})
}

func TestNoteViewNotFound(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	token := s.account(t, "alice", false)

	rec := s.do(t, http.MethodGet, "/notes/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Note does not exist", decodeError(t, rec).Msg)

	rec = s.do(t, http.MethodGet, "/notes/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decodeError(t, rec)
}

func TestNoteDeleteOwnership(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	alice := s.account(t, "alice", false)
	bob := s.account(t, "bob", false)
	id := s.createNote(t, alice, "diary", "secret")

	rec := s.do(t, http.MethodDelete, "/notes/delete", bob, map[string]string{"id": id.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Note does not exist", decodeError(t, rec).Msg)
	assert.Len(t, s.listNotes(t, alice, ""), 1)

	rec = s.do(t, http.MethodDelete, "/notes/delete", alice, map[string]string{"id": uuid.NewString()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Note does not exist", decodeError(t, rec).Msg)

	rec = s.do(t, http.MethodDelete, "/notes/delete", alice, map[string]string{"id": id.String()})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"msg":"Note deleted"}`, rec.Body.String())
	assert.Empty(t, s.listNotes(t, alice, ""))
}

func TestNoteDeleteMalformedBody(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	token := s.account(t, "alice", false)

	rec := s.do(t, http.MethodDelete, "/notes/delete", token, map[string]string{"id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decodeError(t, rec)

	rec = s.do(t, http.MethodDelete, "/notes/delete", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decodeError(t, rec)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, config.VulnerablePolicy())
	s.signup(t, "mallory", true)
	s.do(t, http.MethodGet, "/notes", "", nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `weakapi_signups_total{admin="true"} 1`)
	assert.Contains(t, body, `weakapi_auth_failures_total{reason="missing"} 1`)
	assert.Contains(t, body, `weakapi_http_requests_total{method="POST",route="/user/signup",status="201"} 1`)
}

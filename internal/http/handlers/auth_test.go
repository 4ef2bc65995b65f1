package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/casahub/casahub/internal/auth"
	"github.com/casahub/casahub/internal/config"
	"github.com/casahub/casahub/internal/domain/job"
	"github.com/casahub/casahub/internal/domain/user"
	"github.com/casahub/casahub/internal/http/handlers"
	"github.com/casahub/casahub/internal/repo/memory"
	"github.com/casahub/casahub/internal/security"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// stateful in-memory users store; the lockout tests need real counters

type fakeUsers struct {
	mu    sync.Mutex
	byKey map[string]*user.User // email|role
	byID  map[string]*user.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byKey: make(map[string]*user.User),
		byID:  make(map[string]*user.User),
	}
}

func usersKey(email, role string) string {
	return user.NormalizeEmail(email) + "|" + role
}

func (f *fakeUsers) Create(_ context.Context, u user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := usersKey(u.Email, u.Role)

	if _, exists := f.byKey[key]; exists {
		return user.ErrEmailTaken
	}

	cp := u
	f.byKey[key] = &cp
	f.byID[u.ID] = &cp

	return nil
}

func (f *fakeUsers) GetByEmailRole(_ context.Context, email, role string) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byKey[usersKey(email, role)]

	if !ok {
		return user.User{}, user.ErrUserNotFound
	}

	return *u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]

	if !ok {
		return user.User{}, user.ErrUserNotFound
	}

	return *u, nil
}

func (f *fakeUsers) RecordLoginFailure(_ context.Context, id string, threshold int, window time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]

	if !ok {
		return false, user.ErrUserNotFound
	}

	u.FailedLogins++

	if u.FailedLogins >= threshold {
		until := time.Now().UTC().Add(window)
		u.LockedUntil = &until
		return true, nil
	}

	return false, nil
}

func (f *fakeUsers) ResetLoginFailures(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.byID[id]; ok {
		u.FailedLogins = 0
		u.LockedUntil = nil
	}

	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]

	if !ok {
		return user.ErrUserNotFound
	}

	u.PasswordHash = passwordHash
	u.FailedLogins = 0
	u.LockedUntil = nil

	return nil
}

func (f *fakeUsers) MarkConfirmed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]

	if !ok {
		return user.ErrUserNotFound
	}

	u.Confirmed = true
	return nil
}

// expire pushes the lockout window into the past, as if time had passed.
func (f *fakeUsers) expireLock(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.byID[id]; ok && u.LockedUntil != nil {
		past := time.Now().UTC().Add(-time.Second)
		u.LockedUntil = &past
	}
}

// one-time token store backed by a map (same GETDEL contract as redis)

type mapTokenStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapTokenStore() *mapTokenStore {
	return &mapTokenStore{data: make(map[string]string)}
}

func (s *mapTokenStore) Put(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

func (s *mapTokenStore) Take(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]

	if !ok {
		return "", security.ErrTokenInvalid
	}

	delete(s.data, key)
	return v, nil
}

// queue fake capturing what would hit the outbox

type fakeQueue struct {
	mu   sync.Mutex
	jobs []job.CreateRequest
}

func (f *fakeQueue) Create(_ context.Context, req job.CreateRequest) (job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs = append(f.jobs, req)
	return job.New(req), nil
}

func (f *fakeQueue) byType(jobType string) []job.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []job.CreateRequest

	for _, j := range f.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}

	return out
}

type authFixture struct {
	users   *fakeUsers
	ledger  *memory.SessionsRepo
	manager *auth.Manager
	queue   *fakeQueue
	router  *gin.Engine
}

func testConfig() config.Config {
	return config.Config{
		Env:                  "test",
		JWTSecret:            "0123456789abcdef0123456789abcdef",
		JWTIssuer:            "casahub",
		JWTAudience:          "casahub-api",
		JWTAccessTTLMinutes:  60,
		LockoutThreshold:     5,
		LockoutWindowMinutes: 3,
		PublicBaseURL:        "http://localhost:8080",
	}
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	cfg := testConfig()

	manager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	if err != nil {
		t.Fatalf("auth.NewManager: %v", err)
	}

	users := newFakeUsers()
	ledger := memory.NewSessionsRepo()
	queue := &fakeQueue{}
	otp := security.NewOneTimeTokens(newMapTokenStore())

	h := handlers.NewAuthHandler(users, ledger, manager, otp, queue, cfg, nil, testLogger())

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.GET("/auth/confirm", h.ConfirmEmail)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	r.POST("/auth/forgot-password", h.ForgotPassword)
	r.POST("/auth/reset-password", h.ResetPassword)

	return &authFixture{
		users:   users,
		ledger:  ledger,
		manager: manager,
		queue:   queue,
		router:  r,
	}
}

func (fx *authFixture) post(t *testing.T, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	return w
}

func (fx *authFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	return w
}

func (fx *authFixture) register(t *testing.T, email, password, role string) {
	t.Helper()

	body := fmt.Sprintf(`{"name":"Ada Lovelace","email":%q,"password":%q,"role":%q}`, email, password, role)

	w := fx.post(t, "/auth/register", body, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("register: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func (fx *authFixture) login(t *testing.T, email, password, role string) *httptest.ResponseRecorder {
	t.Helper()

	body := fmt.Sprintf(`{"email":%q,"password":%q,"role":%q}`, email, password, role)

	return fx.post(t, "/auth/login", body, nil)
}

func accessTokenFrom(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		AccessToken string `json:"accessToken"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	if resp.AccessToken == "" {
		t.Fatalf("no access token in response: %s", w.Body.String())
	}

	return resp.AccessToken
}

func errorCodeFrom(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}

	return resp.Error.Code
}

// pulls the one-time token out of the link embedded in a queued email payload
func tokenFromQueuedLink(t *testing.T, raw json.RawMessage) string {
	t.Helper()

	var payload struct {
		Link string `json:"link"`
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode job payload: %v", err)
	}

	u, err := url.Parse(payload.Link)

	if err != nil {
		t.Fatalf("parse link %q: %v", payload.Link, err)
	}

	token := u.Query().Get("token")

	if token == "" {
		t.Fatalf("no token in link %q", payload.Link)
	}

	return token
}

func TestRegisterCreatesUnconfirmedUserAndQueuesEmail(t *testing.T) {
	fx := newAuthFixture(t)

	body := `{"name":"Ada Lovelace","email":"ada@example.com","password":"correct-horse","role":"owner"}`

	w := fx.post(t, "/auth/register", body, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	u, err := fx.users.GetByEmailRole(context.Background(), "ada@example.com", "owner")

	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}

	if u.Confirmed {
		t.Error("new accounts must start unconfirmed")
	}

	if u.PasswordHash == "correct-horse" {
		t.Error("password stored in plaintext")
	}

	queued := fx.queue.byType("email.confirmation")

	if len(queued) != 1 {
		t.Fatalf("confirmation jobs queued = %d, want 1", len(queued))
	}

	if !strings.Contains(w.Body.String(), "confirmationLink") {
		t.Error("response should carry the confirmation link")
	}
}

func TestRegisterDuplicateEmailRole(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	body := `{"name":"Ada Again","email":"ada@example.com","password":"correct-horse","role":"owner"}`

	w := fx.post(t, "/auth/register", body, nil)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}

	if code := errorCodeFrom(t, w); code != "email_taken" {
		t.Fatalf("error code = %q, want email_taken", code)
	}
}

func TestRegisterSameEmailDifferentRole(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")
	fx.register(t, "ada@example.com", "correct-horse", "customer")
}

func TestRegisterValidation(t *testing.T) {
	fx := newAuthFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "bad email", body: `{"name":"Ada","email":"nope","password":"correct-horse","role":"owner"}`},
		{name: "short password", body: `{"name":"Ada","email":"ada@example.com","password":"short","role":"owner"}`},
		{name: "unknown role", body: `{"name":"Ada","email":"ada@example.com","password":"correct-horse","role":"admin"}`},
		{name: "missing name", body: `{"email":"ada@example.com","password":"correct-horse","role":"owner"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := fx.post(t, "/auth/register", tc.body, nil)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestConfirmEmailFlow(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	queued := fx.queue.byType("email.confirmation")

	if len(queued) != 1 {
		t.Fatalf("confirmation jobs queued = %d, want 1", len(queued))
	}

	token := tokenFromQueuedLink(t, queued[0].Payload)

	target := "/auth/confirm?email=ada%40example.com&role=owner&token=" + token

	w := fx.get(t, target)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	u, _ := fx.users.GetByEmailRole(context.Background(), "ada@example.com", "owner")

	if !u.Confirmed {
		t.Fatal("user should be confirmed")
	}

	// the token is single use
	w = fx.get(t, target)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("second confirm: status = %d, want 400", w.Code)
	}
}

func TestLoginSuccessWritesLedger(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	w := fx.login(t, "ada@example.com", "correct-horse", "owner")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	token := accessTokenFrom(t, w)

	if _, err := fx.manager.Verify(token); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}

	if fx.ledger.Count() != 1 {
		t.Fatalf("ledger rows = %d, want 1", fx.ledger.Count())
	}

	if _, err := fx.ledger.FindByTokenHash(context.Background(), fx.manager.HashToken(token)); err != nil {
		t.Fatalf("ledger does not know the issued token: %v", err)
	}
}

// The second login supersedes the first: its token is immediately dead in
// the ledger even though the JWT itself is still validly signed.
func TestSecondLoginSupersedesFirst(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	first := accessTokenFrom(t, fx.login(t, "ada@example.com", "correct-horse", "owner"))
	second := accessTokenFrom(t, fx.login(t, "ada@example.com", "correct-horse", "owner"))

	if fx.ledger.Count() != 1 {
		t.Fatalf("ledger rows = %d, want 1", fx.ledger.Count())
	}

	ctx := context.Background()

	if _, err := fx.ledger.FindByTokenHash(ctx, fx.manager.HashToken(first)); err == nil {
		t.Fatal("first token should be revoked after the second login")
	}

	if _, err := fx.ledger.FindByTokenHash(ctx, fx.manager.HashToken(second)); err != nil {
		t.Fatalf("second token should be live: %v", err)
	}
}

func TestLoginPerRoleSessions(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")
	fx.register(t, "ada@example.com", "correct-horse", "customer")

	ownerResp := fx.login(t, "ada@example.com", "correct-horse", "owner")
	customerResp := fx.login(t, "ada@example.com", "correct-horse", "customer")

	accessTokenFrom(t, ownerResp)
	accessTokenFrom(t, customerResp)

	if fx.ledger.Count() != 2 {
		t.Fatalf("ledger rows = %d, want 2 (one per role)", fx.ledger.Count())
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	// wrong password and unknown account must be indistinguishable
	badPassword := fx.login(t, "ada@example.com", "wrong-password", "owner")
	unknown := fx.login(t, "ghost@example.com", "wrong-password", "owner")

	for _, w := range []*httptest.ResponseRecorder{badPassword, unknown} {
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}

		if code := errorCodeFrom(t, w); code != "invalid_credentials" {
			t.Fatalf("error code = %q, want invalid_credentials", code)
		}
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	for i := 0; i < 5; i++ {
		w := fx.login(t, "ada@example.com", "wrong-password", "owner")

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, w.Code)
		}
	}

	// even the correct password fails while the window is armed
	w := fx.login(t, "ada@example.com", "correct-horse", "owner")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("locked login: status = %d, want 401", w.Code)
	}

	if code := errorCodeFrom(t, w); code != "account_locked" {
		t.Fatalf("error code = %q, want account_locked", code)
	}

	// once the window lapses the correct password works and the counter resets
	u, _ := fx.users.GetByEmailRole(context.Background(), "ada@example.com", "owner")
	fx.users.expireLock(u.ID)

	w = fx.login(t, "ada@example.com", "correct-horse", "owner")

	if w.Code != http.StatusOK {
		t.Fatalf("post-lockout login: status = %d, body = %s", w.Code, w.Body.String())
	}

	u, _ = fx.users.GetByEmailRole(context.Background(), "ada@example.com", "owner")

	if u.FailedLogins != 0 || u.LockedUntil != nil {
		t.Fatalf("counters not reset: failed=%d locked=%v", u.FailedLogins, u.LockedUntil)
	}
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	for i := 0; i < 3; i++ {
		fx.login(t, "ada@example.com", "wrong-password", "owner")
	}

	if w := fx.login(t, "ada@example.com", "correct-horse", "owner"); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// a fresh run of failures starts from zero
	for i := 0; i < 4; i++ {
		fx.login(t, "ada@example.com", "wrong-password", "owner")
	}

	u, _ := fx.users.GetByEmailRole(context.Background(), "ada@example.com", "owner")

	if u.LockedUntil != nil {
		t.Fatal("4 failures after a success must not lock (threshold is 5)")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	token := accessTokenFrom(t, fx.login(t, "ada@example.com", "correct-horse", "owner"))

	headers := map[string]string{"Authorization": "Bearer " + token}

	w := fx.post(t, "/auth/logout", `{}`, headers)

	if w.Code != http.StatusOK {
		t.Fatalf("logout: status = %d", w.Code)
	}

	if fx.ledger.Count() != 0 {
		t.Fatalf("ledger rows = %d, want 0 after logout", fx.ledger.Count())
	}

	// again with the same (now dead) token
	w = fx.post(t, "/auth/logout", `{}`, headers)

	if w.Code != http.StatusOK {
		t.Fatalf("repeat logout: status = %d, want 200", w.Code)
	}

	// and with no token at all
	w = fx.post(t, "/auth/logout", `{}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("tokenless logout: status = %d, want 200", w.Code)
	}
}

// Existence must not leak: the found and not-found answers are identical.
func TestForgotPasswordEqualizedResponses(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	known := fx.post(t, "/auth/forgot-password", `{"email":"ada@example.com","role":"owner"}`, nil)
	unknown := fx.post(t, "/auth/forgot-password", `{"email":"ghost@example.com","role":"owner"}`, nil)

	if known.Code != unknown.Code {
		t.Fatalf("status differs: %d vs %d", known.Code, unknown.Code)
	}

	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("body differs:\n%s\nvs\n%s", known.Body.String(), unknown.Body.String())
	}

	// but only the real account got an email queued
	if n := len(fx.queue.byType("email.password_reset")); n != 1 {
		t.Fatalf("reset jobs queued = %d, want 1", n)
	}
}

func TestResetPasswordMismatchDoesNotBurnToken(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")
	fx.post(t, "/auth/forgot-password", `{"email":"ada@example.com","role":"owner"}`, nil)

	queued := fx.queue.byType("email.password_reset")

	if len(queued) != 1 {
		t.Fatalf("reset jobs queued = %d, want 1", len(queued))
	}

	token := tokenFromQueuedLink(t, queued[0].Payload)

	mismatch := fmt.Sprintf(
		`{"email":"ada@example.com","role":"owner","token":%q,"newPassword":"new-password-1","confirmPassword":"different"}`,
		token,
	)

	w := fx.post(t, "/auth/reset-password", mismatch, nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("mismatch: status = %d, want 400", w.Code)
	}

	// old password still works, nothing was changed
	if w := fx.login(t, "ada@example.com", "correct-horse", "owner"); w.Code != http.StatusOK {
		t.Fatalf("old password should still work, status = %d", w.Code)
	}

	// and the token survived the mismatch, so a proper reset still succeeds
	proper := fmt.Sprintf(
		`{"email":"ada@example.com","role":"owner","token":%q,"newPassword":"new-password-1","confirmPassword":"new-password-1"}`,
		token,
	)

	w = fx.post(t, "/auth/reset-password", proper, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("reset: status = %d, body = %s", w.Code, w.Body.String())
	}

	if w := fx.login(t, "ada@example.com", "new-password-1", "owner"); w.Code != http.StatusOK {
		t.Fatalf("new password rejected, status = %d", w.Code)
	}

	if w := fx.login(t, "ada@example.com", "correct-horse", "owner"); w.Code != http.StatusUnauthorized {
		t.Fatalf("old password still accepted, status = %d", w.Code)
	}
}

func TestResetPasswordRejectsBogusToken(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	body := `{"email":"ada@example.com","role":"owner","token":"bogus","newPassword":"new-password-1","confirmPassword":"new-password-1"}`

	w := fx.post(t, "/auth/reset-password", body, nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestResetPasswordClearsLockout(t *testing.T) {
	fx := newAuthFixture(t)

	fx.register(t, "ada@example.com", "correct-horse", "owner")

	for i := 0; i < 5; i++ {
		fx.login(t, "ada@example.com", "wrong-password", "owner")
	}

	fx.post(t, "/auth/forgot-password", `{"email":"ada@example.com","role":"owner"}`, nil)

	queued := fx.queue.byType("email.password_reset")
	token := tokenFromQueuedLink(t, queued[0].Payload)

	body := fmt.Sprintf(
		`{"email":"ada@example.com","role":"owner","token":%q,"newPassword":"new-password-1","confirmPassword":"new-password-1"}`,
		token,
	)

	if w := fx.post(t, "/auth/reset-password", body, nil); w.Code != http.StatusOK {
		t.Fatalf("reset: status = %d", w.Code)
	}

	// the lock is gone along with the old password
	if w := fx.login(t, "ada@example.com", "new-password-1", "owner"); w.Code != http.StatusOK {
		t.Fatalf("post-reset login: status = %d, body = %s", w.Code, w.Body.String())
	}
}

package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/casahub/casahub/internal/config"
	"github.com/casahub/casahub/internal/domain/job"
	"github.com/casahub/casahub/internal/domain/session"
	"github.com/casahub/casahub/internal/domain/user"
	"github.com/casahub/casahub/internal/jobs"
	"github.com/casahub/casahub/internal/observability"
	"github.com/casahub/casahub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UsersStore interface {
	Create(ctx context.Context, u user.User) error
	GetByEmailRole(ctx context.Context, email, role string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	RecordLoginFailure(ctx context.Context, id string, threshold int, window time.Duration) (bool, error)
	ResetLoginFailures(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkConfirmed(ctx context.Context, id string) error
}

type SessionLedger interface {
	FindActive(ctx context.Context, userID, role string) ([]session.Session, error)
	Replace(ctx context.Context, s session.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (session.Session, error)
	Delete(ctx context.Context, id string) error
}

type TokenIssuer interface {
	GenerateToken(userID, email, role string) (string, time.Time, error)
	HashToken(raw string) string
}

type OneTimeTokenProvider interface {
	Issue(ctx context.Context, purpose security.Purpose, userID, role string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, purpose security.Purpose, token, userID, role string) error
}

type JobEnqueuer interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

// pre-hashed throwaway password so a login against an unknown account still
// pays for a bcrypt comparison (no timing oracle on account existence)
var decoyHash, _ = security.HashPassword("not-a-real-password")

type AuthHandler struct {
	users  UsersStore
	ledger SessionLedger
	tokens TokenIssuer
	otp    OneTimeTokenProvider
	queue  JobEnqueuer
	cfg    config.Config
	prom   *observability.Prom
	log    *slog.Logger
}

func NewAuthHandler(
	users UsersStore,
	ledger SessionLedger,
	tokens TokenIssuer,
	otp OneTimeTokenProvider,
	queue JobEnqueuer,
	cfg config.Config,
	prom *observability.Prom,
	log *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:  users,
		ledger: ledger,
		tokens: tokens,
		otp:    otp,
		queue:  queue,
		cfg:    cfg,
		prom:   prom,
		log:    log,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     string `json:"role" binding:"required,oneof=owner customer"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=owner customer"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=owner customer"`
}

type ResetPasswordRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Role            string `json:"role" binding:"required,oneof=owner customer"`
	Token           string `json:"token" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not process registration")
		return
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(req.Email),
		PasswordHash: hash,
		Name:         req.Name,
		Role:         req.Role,
		Confirmed:    false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = h.users.Create(ctx.Request.Context(), u)

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondConflict(ctx, "email_taken", "This email is already registered for that role")
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "register: create user", "error", err)
		RespondInternal(ctx, "Could not process registration")
		return
	}

	link, err := h.sendConfirmationEmail(ctx, u)

	if err != nil {
		// account exists; the confirmation mail is the only thing we lost
		h.log.ErrorContext(ctx.Request.Context(), "register: confirmation email", "error", err, "user_id", u.ID)
		RespondInternal(ctx, "Registered, but the confirmation email could not be queued")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"user":             u,
		"confirmationLink": link,
	})
}

func (h *AuthHandler) sendConfirmationEmail(ctx *gin.Context, u user.User) (string, error) {
	token, err := h.otp.Issue(ctx.Request.Context(), security.PurposeConfirmEmail, u.ID, u.Role, security.ConfirmTokenTTL)

	if err != nil {
		return "", err
	}

	link := h.buildLink("/api/v1/auth/confirm", u.Email, u.Role, token)

	req, err := jobs.NewConfirmationEmail(jobs.ConfirmationEmailPayload{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		Link:   link,
	})

	if err != nil {
		return "", err
	}

	_, err = h.queue.Create(ctx.Request.Context(), req)

	if err != nil {
		return "", err
	}

	return link, nil
}

func (h *AuthHandler) buildLink(path, email, role, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("role", role)
	q.Set("token", token)

	return h.cfg.PublicBaseURL + path + "?" + q.Encode()
}

// ConfirmEmail lands from the emailed link, so parameters arrive as a query
// string rather than a JSON body.
func (h *AuthHandler) ConfirmEmail(ctx *gin.Context) {
	email := ctx.Query("email")
	role := ctx.Query("role")
	token := ctx.Query("token")

	if email == "" || token == "" || !user.IsValidRole(role) {
		RespondBadRequest(ctx, "Missing or invalid confirmation parameters", nil)
		return
	}

	u, err := h.users.GetByEmailRole(ctx.Request.Context(), email, role)

	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			RespondBadRequest(ctx, "Confirmation link is invalid or expired", nil)
			return
		}

		RespondInternal(ctx, "Could not confirm email")
		return
	}

	err = h.otp.Consume(ctx.Request.Context(), security.PurposeConfirmEmail, token, u.ID, u.Role)

	if err != nil {
		if errors.Is(err, security.ErrTokenInvalid) {
			RespondBadRequest(ctx, "Confirmation link is invalid or expired", nil)
			return
		}

		RespondInternal(ctx, "Could not confirm email")
		return
	}

	err = h.users.MarkConfirmed(ctx.Request.Context(), u.ID)

	if err != nil {
		RespondInternal(ctx, "Could not confirm email")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	rctx := ctx.Request.Context()

	u, err := h.users.GetByEmailRole(rctx, req.Email, req.Role)

	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			// burn a comparison anyway, then answer exactly like a bad password
			_ = security.CheckPassword(decoyHash, req.Password)

			h.countLogin("invalid_credentials")
			RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
			return
		}

		RespondInternal(ctx, "Could not process login")
		return
	}

	if u.IsLockedOut(time.Now().UTC()) {
		h.countLogin("locked_out")
		RespondUnAuthorized(ctx, "account_locked", "Too many failed attempts, try again later")
		return
	}

	if security.CheckPassword(u.PasswordHash, req.Password) != nil {
		locked, ferr := h.users.RecordLoginFailure(rctx, u.ID, h.cfg.LockoutThreshold, h.cfg.LockoutWindow())

		if ferr != nil {
			h.log.ErrorContext(rctx, "login: record failure", "error", ferr, "user_id", u.ID)
		}

		if locked && h.prom != nil {
			h.prom.LockoutsTotal.Inc()
		}

		h.countLogin("invalid_credentials")
		RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
		return
	}

	if h.cfg.RequireConfirmedEmail && !u.Confirmed {
		h.countLogin("unconfirmed")
		RespondUnAuthorized(ctx, "email_unconfirmed", "Confirm your email address before logging in")
		return
	}

	err = h.users.ResetLoginFailures(rctx, u.ID)

	if err != nil {
		h.log.ErrorContext(rctx, "login: reset failures", "error", err, "user_id", u.ID)
	}

	raw, expiresAt, err := h.tokens.GenerateToken(u.ID, u.Email, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not process login")
		return
	}

	prior, err := h.ledger.FindActive(rctx, u.ID, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not process login")
		return
	}

	s := session.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Role:      u.Role,
		TokenHash: h.tokens.HashToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err = h.ledger.Replace(rctx, s)

	if err != nil {
		RespondInternal(ctx, "Could not process login")
		return
	}

	if len(prior) > 0 && h.prom != nil {
		h.prom.SessionsReplaced.Inc()
	}

	h.countLogin("ok")

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": raw,
		"expiresAt":   expiresAt,
		"user":        u,
	})
}

// Logout is deliberately not behind the session gate: presenting an
// already-revoked token must still come back 200.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	const response = "logged_out"

	raw := bearerToken(ctx)

	if raw == "" {
		ctx.JSON(http.StatusOK, gin.H{"status": response})
		return
	}

	rctx := ctx.Request.Context()

	s, err := h.ledger.FindByTokenHash(rctx, h.tokens.HashToken(raw))

	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			h.log.WarnContext(rctx, "logout: ledger lookup", "error", err)
		}

		ctx.JSON(http.StatusOK, gin.H{"status": response})
		return
	}

	err = h.ledger.Delete(rctx, s.ID)

	if err != nil {
		h.log.WarnContext(rctx, "logout: ledger delete", "error", err)
	}

	ctx.JSON(http.StatusOK, gin.H{"status": response})
}

func bearerToken(ctx *gin.Context) string {
	const prefix = "Bearer "

	header := ctx.GetHeader("Authorization")

	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}

	return ""
}

// ForgotPassword answers identically whether or not the account exists.
func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	rctx := ctx.Request.Context()

	u, err := h.users.GetByEmailRole(rctx, req.Email, req.Role)

	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			h.log.ErrorContext(rctx, "forgot password: lookup", "error", err)
		}

		// keep the not-found path doing comparable work
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)

		h.respondForgotAccepted(ctx)
		return
	}

	token, err := h.otp.Issue(rctx, security.PurposeResetPassword, u.ID, u.Role, security.ResetTokenTTL)

	if err != nil {
		h.log.ErrorContext(rctx, "forgot password: issue token", "error", err, "user_id", u.ID)
		h.respondForgotAccepted(ctx)
		return
	}

	link := h.buildLink("/reset-password", u.Email, u.Role, token)

	jreq, err := jobs.NewPasswordResetEmail(jobs.PasswordResetEmailPayload{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		Link:   link,
	})

	if err == nil {
		_, err = h.queue.Create(rctx, jreq)
	}

	if err != nil {
		h.log.ErrorContext(rctx, "forgot password: enqueue email", "error", err, "user_id", u.ID)
	}

	h.respondForgotAccepted(ctx)
}

func (h *AuthHandler) respondForgotAccepted(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "If that account exists, a password reset email is on its way",
	})
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// check the confirmation first; a mismatch must never burn the token
	if req.NewPassword != req.ConfirmPassword {
		RespondBadRequest(ctx, "Passwords do not match", gin.H{"field": "confirmPassword"})
		return
	}

	rctx := ctx.Request.Context()

	u, err := h.users.GetByEmailRole(rctx, req.Email, req.Role)

	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			RespondBadRequest(ctx, "Reset link is invalid or expired", nil)
			return
		}

		RespondInternal(ctx, "Could not reset password")
		return
	}

	err = h.otp.Consume(rctx, security.PurposeResetPassword, req.Token, u.ID, u.Role)

	if err != nil {
		if errors.Is(err, security.ErrTokenInvalid) {
			RespondBadRequest(ctx, "Reset link is invalid or expired", nil)
			return
		}

		RespondInternal(ctx, "Could not reset password")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)

	if err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	err = h.users.UpdatePassword(rctx, u.ID, hash)

	if err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

func (h *AuthHandler) countLogin(outcome string) {
	if h.prom != nil {
		h.prom.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

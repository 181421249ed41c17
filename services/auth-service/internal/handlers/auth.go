package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/services/auth-service/internal/audit"
	"github.com/masterparty/platform/services/auth-service/internal/sessions"
	"github.com/masterparty/platform/services/auth-service/internal/signing"
	"github.com/masterparty/platform/services/auth-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type Users interface {
	Create(ctx context.Context, user storage.User) error
	GetByEmail(ctx context.Context, email string) (storage.User, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
	SetRoles(ctx context.Context, userID string, roles []string) (storage.User, error)
}

type Sessions interface {
	Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error)
	GetByHash(ctx context.Context, hash string) (sessions.RefreshToken, error)
	Rotate(ctx context.Context, oldID, userID, rawToken string, expiresAt time.Time) (string, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

type Auditor interface {
	Record(ctx context.Context, eventType string, actorID string, metadata map[string]any) error
	List(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RotateKey authorizes key rotation and audit reads without an admin token.
	RotateKey string
	// AdminEmails are granted the admin role when they register.
	AdminEmails []string
}

type AuthHandler struct {
	signer   signing.Signer
	users    Users
	sessions Sessions
	audit    Auditor
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

func NewAuthHandler(signer signing.Signer, users Users, sessionRepo Sessions, auditRepo Auditor, logger *slog.Logger, opts Options) *AuthHandler {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	for i, email := range opts.AdminEmails {
		opts.AdminEmails[i] = storage.NormalizeEmail(email)
	}
	return &AuthHandler{
		signer:   signer,
		users:    users,
		sessions: sessionRepo,
		audit:    auditRepo,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.SignUp)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("GET /api/v1/auth/jwks", h.JWKS)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)
	mux.HandleFunc("POST /api/v1/auth/rotate", h.Rotate)
	mux.HandleFunc("GET /api/v1/auth/audit", h.Audit)
	mux.HandleFunc("POST /api/v1/auth/admin/roles", h.SetRoles)
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         storage.User `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	email := storage.NormalizeEmail(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		http.Error(w, "valid email required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < minPasswordLength {
		http.Error(w, "password must have at least 8 characters", http.StatusBadRequest)
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	roles := []string{auth.RoleClient}
	if slices.Contains(h.opts.AdminEmails, email) {
		roles = append(roles, auth.RoleAdmin)
	}
	user := storage.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    h.now().UTC(),
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		h.logger.Error("create user failed", "err", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	h.record(r.Context(), audit.EventRegistered, user.ID, map[string]any{"roles": user.Roles})

	h.writeTokens(r.Context(), w, http.StatusCreated, user, "")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	email := storage.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error("lookup user failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if err := verifyPassword(user.PasswordHash, req.Password); err != nil {
		h.record(r.Context(), audit.EventLoginFailed, user.ID, nil)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	h.record(r.Context(), audit.EventLoggedIn, user.ID, nil)

	h.writeTokens(r.Context(), w, http.StatusOK, user, "")
}

// Refresh spends a refresh token and returns a new pair carrying the user's current roles.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	record, err := h.sessions.GetByHash(r.Context(), sessions.HashToken(raw))
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.Error("lookup refresh token failed", "err", err)
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if !record.Usable(h.now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), record.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.Error("lookup user failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	h.writeTokens(r.Context(), w, http.StatusOK, user, record.ID)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	record, err := h.sessions.GetByHash(r.Context(), sessions.HashToken(raw))
	if errors.Is(err, sessions.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.Error("lookup refresh token failed", "err", err)
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if record.RevokedAt == nil {
		if err := h.sessions.Revoke(r.Context(), record.ID); err != nil {
			http.Error(w, "failed to revoke refresh token", http.StatusInternalServerError)
			return
		}
		h.record(r.Context(), audit.EventLoggedOut, record.UserID, nil)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me reads the stored profile, so roles granted since the token was issued show up here.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.bearer(r)
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}
	user, err := h.users.GetByID(r.Context(), claims.Sub)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		h.logger.Error("lookup user failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	keys := h.signer.JWKS()
	if len(keys) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	if !h.operator(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		ActiveKid string `json:"active_kid"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ActiveKid == "" {
		http.Error(w, "active_kid is required", http.StatusBadRequest)
		return
	}
	previous := h.signer.ActiveKid()
	if err := h.signer.SetActiveKid(req.ActiveKid); err != nil {
		if errors.Is(err, signing.ErrRotationUnsupported) {
			http.Error(w, "rotation not enabled", http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid active_kid", http.StatusBadRequest)
		return
	}
	h.logger.Info("signing key rotated", "previous_kid", previous, "active_kid", req.ActiveKid)
	h.record(r.Context(), audit.EventKeyRotated, auth.IdentityFromRequest(r).UserID, map[string]any{
		"previous_kid": previous,
		"active_kid":   req.ActiveKid,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if !h.operator(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	f := audit.Filter{ActorID: q.Get("actor_id"), EventType: q.Get("event_type")}
	limit, ok := optionalPositive(q.Get("limit"))
	if !ok {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	before, ok := optionalPositive(q.Get("before"))
	if !ok {
		http.Error(w, "invalid before", http.StatusBadRequest)
		return
	}
	f.Limit, f.Before = int(limit), before
	events, err := h.audit.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list audit events failed", "err", err)
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

// SetRoles replaces a user's roles and ends their sessions so new tokens carry the change.
func (h *AuthHandler) SetRoles(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromRequest(r)
	if caller.UserID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !caller.HasRole(auth.RoleAdmin) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if err := storage.ValidateRoles(req.Roles); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.users.SetRoles(r.Context(), req.UserID, req.Roles)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.Error("set roles failed", "err", err, "user_id", req.UserID)
		http.Error(w, "failed to update roles", http.StatusInternalServerError)
		return
	}
	if err := h.sessions.RevokeAllForUser(r.Context(), user.ID); err != nil {
		h.logger.Error("revoke sessions failed", "err", err, "user_id", user.ID)
	}
	h.record(r.Context(), audit.EventRolesChanged, caller.UserID, map[string]any{
		"user_id": user.ID,
		"roles":   user.Roles,
	})
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) writeTokens(ctx context.Context, w http.ResponseWriter, status int, user storage.User, spentRefreshID string) {
	access, err := h.issueAccessToken(user)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	raw, err := newRefreshToken()
	if err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}
	expiresAt := h.now().Add(h.opts.RefreshTTL)
	if spentRefreshID == "" {
		_, err = h.sessions.Create(ctx, user.ID, raw, expiresAt)
	} else {
		_, err = h.sessions.Rotate(ctx, spentRefreshID, user.ID, raw, expiresAt)
	}
	if errors.Is(err, sessions.ErrNotFound) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("store refresh token failed", "err", err)
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, status, tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.opts.AccessTTL.Seconds()),
		User:         user,
	})
}

func (h *AuthHandler) issueAccessToken(user storage.User) (string, error) {
	now := h.now()
	return h.signer.Sign(auth.Claims{
		Sub:        user.ID,
		Email:      user.Email,
		Roles:      user.Roles,
		ProviderID: user.ProviderID,
		Iat:        now.Unix(),
		Exp:        now.Add(h.opts.AccessTTL).Unix(),
	})
}

func (h *AuthHandler) bearer(r *http.Request) (*auth.Claims, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, false
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// operator is an admin behind the gateway or a caller holding the rotate key.
func (h *AuthHandler) operator(r *http.Request) bool {
	if auth.IdentityFromRequest(r).HasRole(auth.RoleAdmin) {
		return true
	}
	key := r.Header.Get("X-Rotate-Key")
	return h.opts.RotateKey != "" && key == h.opts.RotateKey
}

func (h *AuthHandler) record(ctx context.Context, eventType, actorID string, metadata map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, eventType, actorID, metadata); err != nil {
		h.logger.Warn("audit record failed", "err", err, "event_type", eventType)
	}
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}

// optionalPositive parses an optional positive integer query value; "" is 0.
func optionalPositive(raw string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	return n, err == nil && n > 0
}

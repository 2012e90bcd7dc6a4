package authcore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/giantswarm/authcore/security"
	"github.com/giantswarm/authcore/storage"
)

// Handler exposes the Service over HTTP. The refresh token travels
// exclusively in an HttpOnly signed cookie; the access token is
// returned in the JSON body for bearer-header use.
type Handler struct {
	service *Service
	signer  *security.CookieSigner
	cfg     *Config
	logger  *slog.Logger
}

// NewHandler creates the HTTP boundary for a service.
func NewHandler(service *Service, cfg *Config) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg.Cookie.applyDefaults()

	signer, err := security.NewCookieSigner([]byte(cfg.Cookie.Secret))
	if err != nil {
		return nil, fmt.Errorf("invalid cookie secret: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: service,
		signer:  signer,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Routes registers all endpoints on a new ServeMux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh-access", h.handleRefreshAccess)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("POST /auth/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", h.handleResetPassword)
	mux.HandleFunc("PATCH /auth/update-password", h.handleUpdatePassword)
	mux.HandleFunc("GET /auth/confirm-email/{token}", h.handleConfirmEmail)
	mux.HandleFunc("GET /auth/me", h.handleMe)
	mux.HandleFunc("GET /auth/providers", h.handleProviders)
	mux.HandleFunc("GET /oauth/{provider}", h.handleOAuthStart)
	mux.HandleFunc("GET /oauth/{provider}/callback", h.handleOAuthCallback)

	return mux
}

// Request and response bodies

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token     string `json:"token"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type updatePasswordRequest struct {
	Password  string `json:"password"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type userView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Confirmed bool   `json:"confirmed"`
}

type authResponse struct {
	User        userView `json:"user"`
	AccessToken string   `json:"accessToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type providersResponse struct {
	Providers []string `json:"providers"`
}

func viewOf(user *storage.User) userView {
	return userView{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Confirmed: user.Confirmed,
	}
}

// Handlers

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password1, req.Password2); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "confirmation email sent"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password, requestAudience(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSession(w, session)
}

func (h *Handler) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.ConfirmEmail(r.Context(), r.PathValue("token"), requestAudience(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSession(w, session)
}

func (h *Handler) handleRefreshAccess(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.readRefreshCookie(r)
	if !ok {
		h.writeError(w, ErrTokenInvalid)
		return
	}

	session, err := h.service.RefreshAccess(r.Context(), refreshToken, requestAudience(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSession(w, session)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.readRefreshCookie(r)
	if ok {
		if err := h.service.Logout(r.Context(), refreshToken); err != nil {
			h.writeError(w, err)
			return
		}
	}

	h.clearRefreshCookie(w)
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeError(w, err)
		return
	}

	// Always generic: never reveals whether the account exists.
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "if the account exists, a reset email was sent"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password1, req.Password2); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (h *Handler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req updatePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.UpdatePassword(r.Context(), user.ID, req.Password, req.Password1, req.Password2, requestAudience(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSession(w, session)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, viewOf(user))
}

func (h *Handler) handleProviders(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	links, err := h.service.ProviderLinks(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	names := make([]string, 0, len(links))
	for _, link := range links {
		names = append(names, string(link.Provider))
	}

	h.writeJSON(w, http.StatusOK, providersResponse{Providers: names})
}

func (h *Handler) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	authURL, state, err := h.service.AuthorizationURL(provider)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setStateCookie(w, state)
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	expectedState, _ := h.readStateCookie(r)
	h.clearStateCookie(w)

	session, err := h.service.OAuthLogin(r.Context(), provider, code, state, expectedState, requestAudience(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken, session.RefreshTTL)

	redirect := h.cfg.FrontendURL + "?access_token=" + url.QueryEscape(session.AccessToken)
	http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
}

// authenticate resolves the bearer access token into a user.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*storage.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeError(w, ErrTokenInvalid)
		return nil, false
	}

	user, err := h.service.Me(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}

	return user, true
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

// requestAudience derives the token audience from the request origin.
// Empty means the codec falls back to the configured domain.
func requestAudience(r *http.Request) string {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// Cookie handling

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    h.signer.Sign(token),
		Path:     h.cfg.Cookie.Path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   !h.cfg.TestMode,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    "",
		Path:     h.cfg.Cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.cfg.TestMode,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) readRefreshCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(h.cfg.Cookie.Name)
	if err != nil {
		return "", false
	}
	return h.signer.Verify(cookie.Value)
}

func (h *Handler) setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.StateName,
		Value:    h.signer.Sign(state),
		Path:     "/oauth",
		MaxAge:   int(h.cfg.Cookie.StateTTL.Seconds()),
		HttpOnly: true,
		Secure:   !h.cfg.TestMode,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.StateName,
		Value:    "",
		Path:     "/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.cfg.TestMode,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) readStateCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(h.cfg.Cookie.StateName)
	if err != nil {
		return "", false
	}
	return h.signer.Verify(cookie.Value)
}

// Response writing

func (h *Handler) writeSession(w http.ResponseWriter, session *Session) {
	h.setRefreshCookie(w, session.RefreshToken, session.RefreshTTL)
	h.writeJSON(w, http.StatusOK, authResponse{
		User:        viewOf(session.User),
		AccessToken: session.AccessToken,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, NewAuthError(ErrorCodeBadRequest, "invalid request body", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	authErr, ok := err.(*AuthError)
	if !ok {
		h.logger.Error("Unhandled error", "error", err)
		authErr = ErrServer("internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             authErr.Code,
		"error_description": authErr.Description,
	})
}

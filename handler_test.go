package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giantswarm/authcore/providers"
)

func newTestHandler(t *testing.T, opts ...ServiceOption) (*Handler, *Service, *recordingMailer) {
	t.Helper()

	svc, mailer := newTestService(t, opts...)
	handler, err := NewHandler(svc, testConfig(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return handler, svc, mailer
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("response has no %q cookie", name)
	return nil
}

func loginViaHTTP(t *testing.T, handler *Handler, svc *Service, mailer *recordingMailer) (*http.ServeMux, *httptest.ResponseRecorder) {
	t.Helper()

	registerAndConfirm(t, svc, mailer, "a@b.com", "secret1234")

	mux := handler.Routes()
	rec := postJSON(t, mux, "/auth/login", loginRequest{Email: "a@b.com", Password: "secret1234"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return mux, rec
}

func TestHandlerLogin(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	_, rec := loginViaHTTP(t, handler, svc, mailer)

	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("login response has no access token")
	}
	if resp.User.Email != "a@b.com" {
		t.Errorf("user email = %q, want a@b.com", resp.User.Email)
	}
	if strings.Contains(rec.Body.String(), "refresh") {
		t.Error("refresh token leaked into the response body")
	}

	cookie := findCookie(t, rec, "refresh_token")
	if !cookie.HttpOnly {
		t.Error("refresh cookie is not HttpOnly")
	}
	if cookie.Path != "/auth" {
		t.Errorf("refresh cookie path = %q, want /auth", cookie.Path)
	}
	if cookie.MaxAge <= 0 {
		t.Error("refresh cookie has no positive MaxAge")
	}
}

func TestHandlerLoginBadCredentials(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	registerAndConfirm(t, svc, mailer, "a@b.com", "secret1234")

	rec := postJSON(t, handler.Routes(), "/auth/login", loginRequest{Email: "a@b.com", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandlerRefreshRotation(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	mux, rec := loginViaHTTP(t, handler, svc, mailer)
	first := findCookie(t, rec, "refresh_token")

	rec2 := postJSON(t, mux, "/auth/refresh-access", nil, first)
	if rec2.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec2.Code, rec2.Body.String())
	}
	second := findCookie(t, rec2, "refresh_token")
	if second.Value == first.Value {
		t.Error("refresh did not rotate the cookie")
	}

	// Replaying the first cookie after rotation fails.
	rec3 := postJSON(t, mux, "/auth/refresh-access", nil, first)
	if rec3.Code != http.StatusUnauthorized {
		t.Errorf("replayed refresh status = %d, want 401", rec3.Code)
	}

	// The rotated cookie keeps working.
	rec4 := postJSON(t, mux, "/auth/refresh-access", nil, second)
	if rec4.Code != http.StatusOK {
		t.Errorf("rotated refresh status = %d, want 200", rec4.Code)
	}
}

func TestHandlerRefreshWithoutCookie(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := postJSON(t, handler.Routes(), "/auth/refresh-access", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandlerRejectsTamperedCookie(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	mux, rec := loginViaHTTP(t, handler, svc, mailer)
	cookie := findCookie(t, rec, "refresh_token")
	cookie.Value += "x"

	rec2 := postJSON(t, mux, "/auth/refresh-access", nil, cookie)
	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("tampered cookie status = %d, want 401", rec2.Code)
	}
}

func TestHandlerLogout(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	mux, rec := loginViaHTTP(t, handler, svc, mailer)
	cookie := findCookie(t, rec, "refresh_token")

	rec2 := postJSON(t, mux, "/auth/logout", nil, cookie)
	if rec2.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec2.Code)
	}
	cleared := findCookie(t, rec2, "refresh_token")
	if cleared.MaxAge != -1 {
		t.Errorf("logout cookie MaxAge = %d, want -1", cleared.MaxAge)
	}

	rec3 := postJSON(t, mux, "/auth/refresh-access", nil, cookie)
	if rec3.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", rec3.Code)
	}
}

func TestHandlerConfirmEmail(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ada", "a@b.com", "secret1234", "secret1234"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	mux := handler.Routes()
	req := httptest.NewRequest(http.MethodGet, "/auth/confirm-email/"+mailer.lastConfirmation(t), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body = %s", rec.Code, rec.Body.String())
	}
	findCookie(t, rec, "refresh_token")
}

func TestHandlerForgotPasswordGenericResponse(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	registerAndConfirm(t, svc, mailer, "a@b.com", "secret1234")
	mux := handler.Routes()

	known := postJSON(t, mux, "/auth/forgot-password", forgotPasswordRequest{Email: "a@b.com"})
	unknown := postJSON(t, mux, "/auth/forgot-password", forgotPasswordRequest{Email: "nobody@b.com"})

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("statuses = (%d, %d), want (200, 200)", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Error("forgot-password responses differ between known and unknown accounts")
	}
}

func TestHandlerMe(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	session := registerAndConfirm(t, svc, mailer, "a@b.com", "secret1234")
	mux := handler.Routes()

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}

	var view userView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Email != "a@b.com" {
		t.Errorf("email = %q, want a@b.com", view.Email)
	}

	// No token, no user.
	req2 := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated me status = %d, want 401", rec2.Code)
	}
}

func TestHandlerUpdatePassword(t *testing.T) {
	handler, svc, mailer := newTestHandler(t)
	session := registerAndConfirm(t, svc, mailer, "a@b.com", "secret1234")
	mux := handler.Routes()

	body, _ := json.Marshal(updatePasswordRequest{
		Password:  "secret1234",
		Password1: "newsecret123",
		Password2: "newsecret123",
	})
	req := httptest.NewRequest(http.MethodPatch, "/auth/update-password", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("update-password status = %d, body = %s", rec.Code, rec.Body.String())
	}
	findCookie(t, rec, "refresh_token")
}

func TestHandlerOAuthStart(t *testing.T) {
	stub := &stubProvider{
		name:    "google",
		profile: &providers.Profile{Email: "oauth@b.com", FirstName: "Ada"},
	}
	registry := providers.NewRegistry(nil)
	registry.Register(stub)

	handler, _, _ := newTestHandler(t, WithRegistry(registry))
	mux := handler.Routes()

	req := httptest.NewRequest(http.MethodGet, "/oauth/google", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("oauth start status = %d, want 307", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "https://provider.example/authorize?state=") {
		t.Errorf("Location = %q", location)
	}
	findCookie(t, rec, "oauth_state")
}

func TestHandlerOAuthStartUnconfigured(t *testing.T) {
	handler, _, _ := newTestHandler(t, WithRegistry(providers.NewRegistry(nil)))

	req := httptest.NewRequest(http.MethodGet, "/oauth/google", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("unconfigured provider status = %d, want 404", rec.Code)
	}
}

func TestHandlerOAuthCallback(t *testing.T) {
	stub := &stubProvider{
		name:    "google",
		profile: &providers.Profile{Email: "oauth@b.com", FirstName: "Ada", LastName: "Lovelace"},
	}
	registry := providers.NewRegistry(nil)
	registry.Register(stub)

	handler, _, _ := newTestHandler(t, WithRegistry(registry))
	mux := handler.Routes()

	// Start the flow to obtain the state cookie.
	startReq := httptest.NewRequest(http.MethodGet, "/oauth/google", nil)
	startRec := httptest.NewRecorder()
	mux.ServeHTTP(startRec, startReq)
	stateCookie := findCookie(t, startRec, "oauth_state")

	state := strings.TrimPrefix(startRec.Header().Get("Location"), "https://provider.example/authorize?state=")

	req := httptest.NewRequest(http.MethodGet, "/oauth/google/callback?code=the-code&state="+state, nil)
	req.AddCookie(stateCookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("callback status = %d, body = %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "https://app.example.com/login?access_token=") {
		t.Errorf("Location = %q", location)
	}
	findCookie(t, rec, "refresh_token")
	if stub.exchangeCalls != 1 {
		t.Errorf("exchange calls = %d, want 1", stub.exchangeCalls)
	}
}

func TestHandlerOAuthCallbackStateMismatch(t *testing.T) {
	stub := &stubProvider{
		name:    "google",
		profile: &providers.Profile{Email: "oauth@b.com", FirstName: "Ada"},
	}
	registry := providers.NewRegistry(nil)
	registry.Register(stub)

	handler, _, _ := newTestHandler(t, WithRegistry(registry))
	mux := handler.Routes()

	startReq := httptest.NewRequest(http.MethodGet, "/oauth/google", nil)
	startRec := httptest.NewRecorder()
	mux.ServeHTTP(startRec, startReq)
	stateCookie := findCookie(t, startRec, "oauth_state")

	req := httptest.NewRequest(http.MethodGet, "/oauth/google/callback?code=the-code&state=forged", nil)
	req.AddCookie(stateCookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged callback status = %d, want 401", rec.Code)
	}
	if stub.exchangeCalls != 0 {
		t.Errorf("exchange calls = %d on state mismatch, want 0", stub.exchangeCalls)
	}
}

func TestHandlerProviders(t *testing.T) {
	stub := &stubProvider{
		name:    "google",
		profile: &providers.Profile{Email: "oauth@b.com", FirstName: "Ada"},
	}
	registry := providers.NewRegistry(nil)
	registry.Register(stub)

	handler, svc, _ := newTestHandler(t, WithRegistry(registry))
	session, err := svc.OAuthLogin(context.Background(), "google", "code", "s", "s", "")
	if err != nil {
		t.Fatalf("OAuthLogin() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/providers", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("providers status = %d", rec.Code)
	}

	var resp providersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Providers) != 1 || resp.Providers[0] != "google" {
		t.Errorf("providers = %v, want [google]", resp.Providers)
	}
}

func TestHandlerRegisterFlow(t *testing.T) {
	handler, _, mailer := newTestHandler(t)
	mux := handler.Routes()

	rec := postJSON(t, mux, "/auth/register", registerRequest{
		Name:      "Ada Lovelace",
		Email:     "a@b.com",
		Password1: "secret1234",
		Password2: "secret1234",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if mailer.confirmationCount() != 1 {
		t.Fatalf("confirmation emails = %d, want 1", mailer.confirmationCount())
	}

	dup := postJSON(t, mux, "/auth/register", registerRequest{
		Name:      "Eve",
		Email:     "A@B.com",
		Password1: "secret1234",
		Password2: "secret1234",
	})
	if dup.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", dup.Code)
	}
}

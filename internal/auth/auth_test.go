package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator("test-secret", "webhookd", "webhookd-admin")
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestNewValidatorEmptySecret(t *testing.T) {
	if _, err := NewValidator("", "iss", "aud"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestMintAndValidate(t *testing.T) {
	v := newTestValidator(t)

	token, err := v.MintToken("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	sub, err := v.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if sub != "ops@example.com" {
		t.Errorf("subject = %q", sub)
	}
}

func TestValidateRejects(t *testing.T) {
	v := newTestValidator(t)
	other, _ := NewValidator("other-secret", "webhookd", "webhookd-admin")
	wrongIssuer, _ := NewValidator("test-secret", "someone-else", "webhookd-admin")

	expired, _ := v.MintToken("sub", -time.Minute)
	foreign, _ := other.MintToken("sub", time.Hour)
	badIss, _ := wrongIssuer.MintToken("sub", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", foreign},
		{"wrong issuer", badIss},
		{"garbage", "not.a.token"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.ValidateToken(tt.token); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	v := newTestValidator(t)
	token, _ := v.MintToken("ops", time.Hour)

	var gotSubject string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = r.Context().Value(SubjectKey).(string)
		w.WriteHeader(http.StatusOK)
	})
	handler := v.HTTPMiddleware(inner)

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "/v1/endpoints", "Bearer " + token, http.StatusOK},
		{"missing header", "/v1/endpoints", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/endpoints", "Basic abc", http.StatusUnauthorized},
		{"bad token", "/v1/endpoints", "Bearer nope", http.StatusUnauthorized},
		{"healthz bypasses auth", "/healthz", "", http.StatusOK},
		{"metrics bypasses auth", "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.name == "valid token" && gotSubject != "ops" {
				t.Errorf("subject in context = %q, want ops", gotSubject)
			}
		})
	}
}

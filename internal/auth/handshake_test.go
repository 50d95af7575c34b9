package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"arcadetalk/internal/models"
	"arcadetalk/internal/store"
)

func TestHandshake(t *testing.T) {
	secret := "handshake-secret"
	st := store.NewMemory()
	alice := models.User{Username: "alice", PasswordHash: "x", IsAdmin: true}
	if err := st.Users.Create(context.Background(), &alice); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	valid, _ := GenerateAccessToken(alice.ID, secret, 15)
	expired, _ := GenerateAccessToken(alice.ID, secret, -1)
	wrongSecret, _ := GenerateAccessToken(alice.ID, "other", 15)
	unknownUser, _ := GenerateAccessToken(alice.ID+100, secret, 15)

	tests := []struct {
		name     string
		token    string
		wantAuth bool
	}{
		{"no token", "", false},
		{"garbage", "not-a-jwt", false},
		{"expired", expired, false},
		{"wrong secret", wrongSecret, false},
		{"unknown user", unknownUser, false},
		{"valid", valid, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := Handshake(context.Background(), st.Users, secret, tt.token)
			if sess.ConnID == "" {
				t.Fatal("Handshake() returned empty ConnID")
			}
			if sess.Authenticated != tt.wantAuth {
				t.Fatalf("Handshake() Authenticated = %v, want %v", sess.Authenticated, tt.wantAuth)
			}
			if !tt.wantAuth {
				if sess.UserID != 0 {
					t.Errorf("anonymous UserID = %d, want 0", sess.UserID)
				}
				if sess.RoutingKey() != sess.ConnID {
					t.Errorf("RoutingKey() = %q, want conn id %q", sess.RoutingKey(), sess.ConnID)
				}
				return
			}
			if sess.UserID != alice.ID || sess.Username != "alice" || !sess.IsAdmin {
				t.Errorf("Handshake() = %+v, want alice as admin", sess)
			}
		})
	}
}

func TestHandshake_UniqueConnIDs(t *testing.T) {
	st := store.NewMemory()
	a := Handshake(context.Background(), st.Users, "s", "")
	b := Handshake(context.Background(), st.Users, "s", "")
	if a.ConnID == b.ConnID {
		t.Errorf("ConnID repeated: %q", a.ConnID)
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"none", "/ws", "", ""},
		{"header", "/ws", "Bearer abc", "abc"},
		{"lowercase scheme", "/ws", "bearer abc", "abc"},
		{"query", "/ws?token=xyz", "", "xyz"},
		{"header wins", "/ws?token=xyz", "Bearer abc", "abc"},
		{"basic ignored", "/ws?token=xyz", "Basic Zm9v", "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(r); got != tt.want {
				t.Errorf("TokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

package auth

import (
	"errors"
	"testing"
)

func TestRegisterLoginResolve(t *testing.T) {
	m := NewManager()

	accountID, token, err := m.Register("mira_v", "wayfarer9")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if accountID == 0 || token == "" {
		t.Fatalf("expected account id and token, got %d %q", accountID, token)
	}

	resolvedID, username, ok := m.ResolveSession(token)
	if !ok {
		t.Fatalf("expected valid session")
	}
	if resolvedID != accountID || username != "mira_v" {
		t.Fatalf("session resolved to %d %q, want %d mira_v", resolvedID, username, accountID)
	}

	loginID, loginToken, err := m.Login("mira_v", "wayfarer9")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loginID != accountID {
		t.Fatalf("login returned account %d, want %d", loginID, accountID)
	}
	if loginToken == "" || loginToken == token {
		t.Fatalf("expected a fresh login token")
	}
}

func TestRegisterValidatesInputs(t *testing.T) {
	cases := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"short username", "ab", "wayfarer9", ErrInvalidUsername},
		{"bad leading char", ".mira", "wayfarer9", ErrInvalidUsername},
		{"short password", "mira_v", "five5", ErrInvalidPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager()
			if _, _, err := m.Register(tc.username, tc.password); !errors.Is(err, tc.want) {
				t.Fatalf("Register(%q, %q) = %v, want %v", tc.username, tc.password, err, tc.want)
			}
		})
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	m := NewManager()
	if _, _, err := m.Register("mira_v", "wayfarer9"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	// Usernames are case-insensitive.
	if _, _, err := m.Register("Mira_V", "wayfarer9"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	m := NewManager()
	if _, _, err := m.Register("mira_v", "wayfarer9"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, _, err := m.Login("mira_v", "not-the-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := m.Login("nobody", "wayfarer9"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	m := NewManager()
	_, token, err := m.Register("mira_v", "wayfarer9")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	m.Logout(token)
	if _, _, ok := m.ResolveSession(token); ok {
		t.Fatalf("expected logged out token to be invalid")
	}
}

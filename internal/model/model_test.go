package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles {
		got, err := ParseRole(string(r))
		if err != nil {
			t.Errorf("ParseRole(%q): %v", r, err)
		}
		if got != r {
			t.Errorf("ParseRole(%q) = %q", r, got)
		}
	}

	for _, bad := range []string{"", "admin", "Teacher", "teacher "} {
		if _, err := ParseRole(bad); err == nil {
			t.Errorf("ParseRole(%q): expected error", bad)
		}
	}
}

func TestRoleSetAllows(t *testing.T) {
	readers := NewRoleSet(RoleTeacher, RoleUser)

	if !readers.Allows(RoleTeacher) {
		t.Error("expected teacher allowed")
	}
	if !readers.Allows(RoleUser) {
		t.Error("expected user allowed")
	}
	if readers.Allows(RoleSensor) {
		t.Error("expected sensor rejected")
	}
	if readers.Allows(Role("admin")) {
		t.Error("expected unknown role rejected")
	}
}

func TestRoleSetStrings(t *testing.T) {
	got := strings.Join(NewRoleSet(RoleTeacher, RoleSensor, RoleTeacher).Strings(), ",")
	if got != "sensor,teacher" {
		t.Errorf("Strings() = %q, want %q", got, "sensor,teacher")
	}
}

func TestNewRoleSetPanics(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
	}{
		{"empty", nil},
		{"unknown", []Role{RoleTeacher, Role("root")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			NewRoleSet(tt.roles...)
		})
	}
}

func TestUserJSONHidesPasswordHash(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	u := User{
		ID:           "u-1",
		Username:     "alice",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuuABCDEFGHIJKLMNOPQRSTUVWXYZ01234",
		Role:         RoleUser,
		CreatedAt:    now,
	}

	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(b), "password") || strings.Contains(string(b), "$2a$") {
		t.Errorf("password hash leaked into JSON: %s", b)
	}

	pub := u.Public()
	if pub.ID != "u-1" || pub.Username != "alice" || pub.Role != RoleUser {
		t.Errorf("Public() = %+v", pub)
	}
}

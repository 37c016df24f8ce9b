package models

import (
	"testing"
	"time"
)

func TestRole(t *testing.T) {
	tests := []struct {
		role        Role
		valid       bool
		canValidate bool
	}{
		{RoleAdmin, true, true},
		{RoleMonitor, true, true},
		{RoleStudent, true, false},
		{RoleUser, true, false},
		{Role("root"), false, false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.valid {
			t.Errorf("%s.Valid() = %v", tt.role, got)
		}
		if got := tt.role.CanValidate(); got != tt.canValidate {
			t.Errorf("%s.CanValidate() = %v", tt.role, got)
		}
	}
}

func TestUser_DisplayName(t *testing.T) {
	if got := (&User{Email: "maria@mindhub.com"}).DisplayName(); got != "maria" {
		t.Errorf("got %q", got)
	}
	if got := (&User{Email: "x@y", FirstName: "Ana"}).DisplayName(); got != "Ana" {
		t.Errorf("got %q", got)
	}
	if got := (&User{FirstName: "Ana", LastName: "Costa"}).FullName(); got != "Ana Costa" {
		t.Errorf("got %q", got)
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	if s.Expired(now) {
		t.Error("session should be valid")
	}
	if !s.Expired(now.Add(time.Minute)) {
		t.Error("session should be expired at its deadline")
	}
}

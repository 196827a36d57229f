package model

import "testing"

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"admin", "user", "readonly"} {
		if _, err := ParseRole(valid); err != nil {
			t.Errorf("ParseRole(%q) failed: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "Admin", "root", "read-only"} {
		if _, err := ParseRole(invalid); err == nil {
			t.Errorf("ParseRole(%q) should fail", invalid)
		}
	}
}

func TestRoleSatisfies(t *testing.T) {
	tests := []struct {
		have     Role
		required Role
		want     bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleUser, true},
		{RoleAdmin, RoleReadOnly, true},
		{RoleUser, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleUser, RoleReadOnly, false},
		{RoleReadOnly, RoleReadOnly, true},
		{RoleReadOnly, RoleUser, false},
		{RoleReadOnly, RoleAdmin, false},
	}
	for _, tt := range tests {
		if got := tt.have.Satisfies(tt.required); got != tt.want {
			t.Errorf("%s.Satisfies(%s) = %v, want %v", tt.have, tt.required, got, tt.want)
		}
	}
}

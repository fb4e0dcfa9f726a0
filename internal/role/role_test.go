package role

import "testing"

func TestAtLeast(t *testing.T) {
	tests := []struct {
		role      Role
		threshold Role
		want      bool
	}{
		{User, User, true},
		{User, Member, false},
		{Member, User, true},
		{Member, Admin, false},
		{Admin, Member, true},
		{Admin, Superadmin, false},
		{Superadmin, Admin, true},
		{Superadmin, Superadmin, true},
		{Role("owner"), User, false},
		{Superadmin, Role(""), false},
	}

	for _, tt := range tests {
		if got := AtLeast(tt.role, tt.threshold); got != tt.want {
			t.Fatalf("AtLeast(%q, %q) = %v, want %v", tt.role, tt.threshold, got, tt.want)
		}
	}
}

func TestOrderIsTotal(t *testing.T) {
	for i, lower := range All {
		for j, higher := range All {
			if got, want := IsSameOrHigher(higher, lower), j >= i; got != want {
				t.Fatalf("IsSameOrHigher(%q, %q) = %v, want %v", higher, lower, got, want)
			}
		}
	}
}

func TestParse(t *testing.T) {
	r, err := Parse("  Admin ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r != Admin {
		t.Fatalf("expected admin, got %q", r)
	}

	if _, err := Parse("owner"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestIsPrivileged(t *testing.T) {
	if IsPrivileged(Member) {
		t.Fatal("member must not be privileged")
	}
	if !IsPrivileged(Admin) || !IsPrivileged(Superadmin) {
		t.Fatal("admin and superadmin must be privileged")
	}
}

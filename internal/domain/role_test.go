package domain

import "testing"

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"user": RoleUser, " ADMIN ": RoleAdmin, "Admin": RoleAdmin} {
		got, ok := ParseRole(in)
		if !ok || got != want {
			t.Fatalf("ParseRole(%q) = %q,%v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseRole("root"); ok {
		t.Fatalf("unknown role accepted")
	}
}

func TestCan(t *testing.T) {
	cases := []struct {
		role  Role
		owner bool
		cap   Capability
		want  bool
	}{
		{RoleUser, true, CapManageMembers, true},
		{RoleUser, false, CapManageMembers, false},
		{RoleAdmin, false, CapManageMembers, true},
		{RoleUser, true, CapStartPersonal, true},
		{RoleAdmin, false, CapStartPersonal, false},
		{RoleUser, true, CapViewConversation, true},
		{RoleAdmin, false, CapViewConversation, false},
		{RoleUser, true, CapPostMessage, true},
		{Role("ROOT"), true, CapManageMembers, false},
		{RoleAdmin, true, Capability(99), false},
	}
	for _, c := range cases {
		if got := Can(c.role, c.owner, c.cap); got != c.want {
			t.Fatalf("Can(%q,%v,%d) = %v; want %v", c.role, c.owner, c.cap, got, c.want)
		}
	}
}

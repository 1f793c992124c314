package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "viewer export", role: RoleViewer, action: ActionExport, allow: false},
		{name: "analyst write", role: RoleAnalyst, action: ActionWrite, allow: true},
		{name: "analyst approve", role: RoleAnalyst, action: ActionApprove, allow: false},
		{name: "manager approve", role: RoleManager, action: ActionApprove, allow: true},
		{name: "manager export", role: RoleManager, action: ActionExport, allow: true},
		{name: "manager admin", role: RoleManager, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("manager"); got != RoleManager {
		t.Fatalf("Normalize(manager) = %q", got)
	}
	if got := Normalize(""); got != RoleViewer {
		t.Fatalf("Normalize(empty) = %q, want viewer", got)
	}
	if got := Normalize("superuser"); got != RoleViewer {
		t.Fatalf("Normalize(superuser) = %q, want viewer", got)
	}
}

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
		{name: "viewer annotate", role: RoleViewer, action: ActionAnnotate, allow: false},
		{name: "viewer export", role: RoleViewer, action: ActionExport, allow: false},
		{name: "owner annotate", role: RoleOwner, action: ActionAnnotate, allow: true},
		{name: "owner edit", role: RoleOwner, action: ActionEdit, allow: false},
		{name: "owner submit", role: RoleOwner, action: ActionSubmit, allow: false},
		{name: "owner export", role: RoleOwner, action: ActionExport, allow: true},
		{name: "editor edit", role: RoleEditor, action: ActionEdit, allow: true},
		{name: "editor submit", role: RoleEditor, action: ActionSubmit, allow: true},
		{name: "unknown role", role: Role("admin"), action: ActionRead, allow: false},
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
	cases := map[string]Role{
		"owner":  RoleOwner,
		"editor": RoleEditor,
		"viewer": RoleViewer,
		"admin":  RoleViewer,
		"":       RoleViewer,
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRoleFor(t *testing.T) {
	cases := []struct {
		name, user, owner, editor string
		want                      Role
	}{
		{name: "anonymous", user: "", owner: "olivia", editor: "ed", want: RoleViewer},
		{name: "claimed editor", user: "ed", owner: "olivia", editor: "ed", want: RoleEditor},
		{name: "owner", user: "olivia", owner: "olivia", editor: "ed", want: RoleOwner},
		{name: "stranger", user: "sam", owner: "olivia", editor: "ed", want: RoleViewer},
		{name: "unclaimed", user: "sam", owner: "olivia", editor: "", want: RoleEditor},
		{name: "owner of unclaimed", user: "olivia", owner: "olivia", editor: "", want: RoleOwner},
		{name: "owner editing own", user: "olivia", owner: "olivia", editor: "olivia", want: RoleEditor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RoleFor(tc.user, tc.owner, tc.editor); got != tc.want {
				t.Fatalf("RoleFor(%q, %q, %q) = %q, want %q", tc.user, tc.owner, tc.editor, got, tc.want)
			}
		})
	}
}

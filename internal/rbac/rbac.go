// Package rbac decides what each participant of an editing session may do.
package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
)

const (
	ActionRead     Action = "read"
	ActionAnnotate Action = "annotate"
	ActionEdit     Action = "edit"
	ActionSubmit   Action = "submit"
	ActionExport   Action = "export"
)

// Can reports whether role may perform action. Owners review: they read,
// comment and export but never change the text. Editors do everything.
func Can(role Role, action Action) bool {
	switch role {
	case RoleEditor:
		return true
	case RoleOwner:
		return action == ActionRead || action == ActionAnnotate || action == ActionExport
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleOwner, RoleEditor:
		return Role(role)
	default:
		return RoleViewer
	}
}

// RoleFor resolves the role of user in a session owned by owner and claimed
// by editor. An unclaimed session treats every named user as its editor.
func RoleFor(user, owner, editor string) Role {
	switch {
	case user == "":
		return RoleViewer
	case editor != "" && user == editor:
		return RoleEditor
	case user == owner:
		return RoleOwner
	case editor == "":
		return RoleEditor
	default:
		return RoleViewer
	}
}

package rbac

import "errors"

type Role string
type Capability string

const (
	RoleViewer   Role = "viewer"
	RoleReviewer Role = "reviewer"
	RoleEditor   Role = "editor"
	RoleAdmin    Role = "admin"
)

const (
	CapView    Capability = "view"
	CapComment Capability = "comment"
	CapEdit    Capability = "edit"
	CapAdmin   Capability = "admin"
)

var ErrDenied = errors.New("permission denied")

// Can reports whether a collaborator role grants the capability.
func Can(role Role, capability Capability) bool {
	switch role {
	case RoleAdmin:
		return capability == CapView || capability == CapComment || capability == CapEdit || capability == CapAdmin
	case RoleEditor:
		return capability == CapView || capability == CapComment || capability == CapEdit
	case RoleReviewer:
		return capability == CapView || capability == CapComment
	case RoleViewer:
		return capability == CapView
	default:
		return false
	}
}

// Valid reports whether role is one of the four platform roles.
func Valid(role string) bool {
	switch Role(role) {
	case RoleViewer, RoleReviewer, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

func ValidCapability(capability string) bool {
	switch Capability(capability) {
	case CapView, CapComment, CapEdit, CapAdmin:
		return true
	default:
		return false
	}
}

// Grant binds a non-owner user to a role on one document.
type Grant struct {
	UserID string
	Role   string
}

// Subject is the authenticated caller.
type Subject struct {
	UserID string
	Role   string
}

// Authorize resolves owner first, then the collaborator list. The platform
// role grants nothing on a document the subject is not bound to. The caller
// is responsible for the not-found check.
func Authorize(ownerID string, grants []Grant, subject Subject, capability Capability) error {
	if subject.UserID == "" {
		return ErrDenied
	}
	if subject.UserID == ownerID {
		return nil
	}
	for _, grant := range grants {
		if grant.UserID != subject.UserID {
			continue
		}
		if Can(Role(grant.Role), capability) {
			return nil
		}
		return ErrDenied
	}
	return ErrDenied
}

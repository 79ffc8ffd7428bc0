// Package policy decides whether a caller may read or change a record.
//
// A nil caller is anonymous. Reads are open to everyone; every mutation
// needs an authenticated caller holding the write scope, and task
// mutations additionally need the caller to own the task.
package policy

import "github.com/taskboard/taskboard/internal/model"

// MayRead reports whether caller may read any task or user.
func MayRead(caller *model.AuthContext) bool {
	return true
}

// MayCreate reports whether caller may create tasks and users.
func MayCreate(caller *model.AuthContext) bool {
	return caller != nil && caller.UserID != 0 && caller.HasScope(model.ScopeWrite)
}

// MayModifyTask reports whether caller may replace or delete task.
func MayModifyTask(caller *model.AuthContext, task *model.Task) bool {
	if task == nil || !MayCreate(caller) {
		return false
	}
	return caller.UserID == task.OwnerID
}

// MayManageKeys reports whether caller may list, create, or revoke its own API keys.
func MayManageKeys(caller *model.AuthContext) bool {
	return caller != nil && caller.UserID != 0
}

// MayGrantScope reports whether caller may issue a credential carrying scope.
// Only admins can hand out admin.
func MayGrantScope(caller *model.AuthContext, scope string) bool {
	if scope == model.ScopeAdmin {
		return caller.HasScope(model.ScopeAdmin)
	}
	return MayManageKeys(caller)
}

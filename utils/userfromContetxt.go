package utils

import (
	"net/http"
	"slices"

	"bulkhaul/globals"
)

func GetUserIDFromRequest(r *http.Request) string {
	requestingUserID, ok := r.Context().Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}

// GetRolesFromRequest returns the role claims placed in the context by middleware.Authenticate.
func GetRolesFromRequest(r *http.Request) []string {
	roles, _ := r.Context().Value(globals.RoleKey).([]string)
	return roles
}

func HasRole(r *http.Request, roles ...string) bool {
	for _, have := range GetRolesFromRequest(r) {
		if slices.Contains(roles, have) {
			return true
		}
	}
	return false
}

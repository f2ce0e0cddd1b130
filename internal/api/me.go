package api

import (
	"net/http"

	"github.com/actionlab/ignacio/internal/identity"
)

// Me handles GET /api/me, returning the authenticated user's profile.
func Me(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	JSON(w, http.StatusOK, map[string]interface{}{
		"id":           user.ID,
		"email":        user.Email,
		"name":         user.Name,
		"display_name": user.DisplayName(),
		"active":       user.Active,
		"created_at":   user.CreatedAt,
	})
}

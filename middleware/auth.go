package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	RoleStudent     = "student"
	RoleSchoolAdmin = "school_admin"
	RoleSuperAdmin  = "super_admin"
)

const (
	localUserID   = "user_id"
	localRoles    = "user_roles"
	localSchoolID = "school_id"
)

// Identity is the caller as forwarded by the gateway.
type Identity struct {
	UserID   string
	Roles    []string
	SchoolID string
}

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i Identity) IsSuperAdmin() bool { return i.HasRole(RoleSuperAdmin) }

// AdminOf reports whether the caller may read the given school's data.
func (i Identity) AdminOf(schoolID string) bool {
	if i.IsSuperAdmin() {
		return true
	}
	return i.HasRole(RoleSchoolAdmin) && i.SchoolID != "" && i.SchoolID == schoolID
}

// UserContextMiddleware extracts X-User-ID, X-User-Roles and X-School-ID set
// by the gateway. Requests without a user id are rejected.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through the gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			r = strings.ToLower(strings.TrimSpace(r))
			if r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(localUserID, userID)
		c.Locals(localRoles, roles)
		c.Locals(localSchoolID, strings.TrimSpace(c.Get("X-School-ID")))

		return c.Next()
	}
}

// CurrentIdentity returns what UserContextMiddleware stored on the context.
func CurrentIdentity(c *fiber.Ctx) Identity {
	id := Identity{}
	id.UserID, _ = c.Locals(localUserID).(string)
	id.Roles, _ = c.Locals(localRoles).([]string)
	id.SchoolID, _ = c.Locals(localSchoolID).(string)
	return id
}

// RequireRole lets the request through when the caller holds any of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := CurrentIdentity(c)
		for _, role := range roles {
			if id.HasRole(role) {
				return c.Next()
			}
		}
		log.Printf("🚫 [USER_CTX] user %s with roles %v denied %s %s", id.UserID, id.Roles, c.Method(), c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}

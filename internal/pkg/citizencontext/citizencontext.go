package citizencontext

import "github.com/gofiber/fiber/v2"

// CitizenContext represents the authenticated caller of a request. The
// identity gateway in front of the API resolves the token and forwards the
// citizen id and roles; the middleware materializes them here.
type CitizenContext struct {
	CitizenID       string   `json:"citizen_id"`
	Roles           []string `json:"roles"`
	Groups          []string `json:"groups"`
	IsAuthenticated bool     `json:"is_authenticated"`
}

// GetCitizenContext retrieves the citizen context from fiber context.
// Returns a default anonymous context if none is set.
func GetCitizenContext(c *fiber.Ctx) CitizenContext {
	if ctx := c.Locals(ContextKey); ctx != nil {
		return ctx.(CitizenContext)
	}
	return CitizenContext{IsAuthenticated: false}
}

// GetCitizenID returns the caller's citizen id, or empty when anonymous.
func GetCitizenID(c *fiber.Ctx) string {
	return GetCitizenContext(c).CitizenID
}

// GetGroups returns the funder group names the caller belongs to. Managers
// are scoped to their own funders through these.
func GetGroups(c *fiber.Ctx) []string {
	return GetCitizenContext(c).Groups
}

// HasRole checks whether the caller carries the given gateway role.
func HasRole(c *fiber.Ctx, role string) bool {
	for _, r := range GetCitizenContext(c).Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsManager checks if the caller belongs to a funder back office.
func IsManager(c *fiber.Ctx) bool {
	return HasRole(c, RoleManager)
}

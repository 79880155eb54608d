package citizencontext

// Shared Locals keys used across controllers and middlewares
const (
	ContextKey   = "CITIZEN_CONTEXT"
	KeyCitizenID = "citizen_id"
)

// Roles carried by the identity gateway.
const (
	RoleCitizen = "citoyens"
	RoleManager = "gestionnaires"
)

package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityAccess                       // Access token required
	SecurityManager                      // Access token with admin or owner role required
)

// Route names are the gorilla/mux route names registered by the HTTP API.
var EndpointSecurityConfig = map[string]SecurityLevel{
	"health":  SecurityPublic,
	"metrics": SecurityPublic,

	// Read-only penalty preview
	"penalty.preview": SecurityAccess,

	// Penalty mutations
	"penalty.apply":        SecurityManager,
	"penalty.applyMonthly": SecurityManager,
	"penalty.adjust":       SecurityManager,
	"penalty.remove":       SecurityManager,
	"penalty.recalculate":  SecurityManager,
}

// ManagerRoles may mutate penalties
var ManagerRoles = []string{"admin", "owner"}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityManager
}

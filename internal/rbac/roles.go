package rbac

// Role names. Keep these stable; they are embedded in issued tokens.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Roles lists every role in descending privilege.
var Roles = []string{RoleAdmin, RoleOperator, RoleViewer}

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnown(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Read and write groups used by the route table.
var (
	CanRead  = []string{RoleOperator, RoleViewer}
	CanWrite = []string{RoleOperator}
)

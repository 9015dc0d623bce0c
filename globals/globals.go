package globals

var (
	JwtSecret = []byte("change_me") // replaced from config at startup
)

// Context keys
type ContextKey string

const RoleKey ContextKey = "role"
const UserIDKey ContextKey = "userId"

const (
	RoleCustomer   = "customer"
	RoleDispatcher = "dispatcher"
	RoleAdmin      = "admin"
	RoleService    = "service"
)

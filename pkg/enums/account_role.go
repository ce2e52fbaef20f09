package enums

// AccountRole is carried in access tokens. Sellers see their own money;
// admins can refund and retry fulfillment.
type AccountRole string

const (
	AccountRoleSeller AccountRole = "seller"
	AccountRoleAdmin  AccountRole = "admin"
)

var accountRoles = []AccountRole{AccountRoleSeller, AccountRoleAdmin}

func (r AccountRole) String() string { return string(r) }

func (r AccountRole) IsValid() bool { return isMember(r, accountRoles) }

func ParseAccountRole(value string) (AccountRole, error) {
	return parseMember("account role", value, accountRoles)
}

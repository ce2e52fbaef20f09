package enums

// PayoutStatus tracks a seller withdrawal. Completed and failed are final.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

var payoutStatuses = []PayoutStatus{PayoutStatusPending, PayoutStatusCompleted, PayoutStatusFailed}

func (s PayoutStatus) String() string { return string(s) }

func (s PayoutStatus) IsValid() bool { return isMember(s, payoutStatuses) }

// PayoutMethod identifies the rail used to pay a seller.
type PayoutMethod string

const (
	PayoutMethodStripe PayoutMethod = "stripe"
	PayoutMethodPayPal PayoutMethod = "paypal"
)

var payoutMethods = []PayoutMethod{PayoutMethodStripe, PayoutMethodPayPal}

func (m PayoutMethod) String() string { return string(m) }

func (m PayoutMethod) IsValid() bool { return isMember(m, payoutMethods) }

func ParsePayoutMethod(value string) (PayoutMethod, error) {
	return parseMember("payout method", value, payoutMethods)
}

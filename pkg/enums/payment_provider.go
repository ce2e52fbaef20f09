package enums

// PaymentProvider identifies the processor that collected a customer payment.
type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderPayPal PaymentProvider = "paypal"
)

var paymentProviders = []PaymentProvider{PaymentProviderStripe, PaymentProviderPayPal}

func (p PaymentProvider) String() string { return string(p) }

func (p PaymentProvider) IsValid() bool { return isMember(p, paymentProviders) }

func ParsePaymentProvider(value string) (PaymentProvider, error) {
	return parseMember("payment provider", value, paymentProviders)
}

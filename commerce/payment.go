package commerce

import "strings"

// PaymentMethod is a recorded label only; nothing is ever charged.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "Credit Card"
	PaymentDebitCard  PaymentMethod = "Debit Card"
	PaymentCash       PaymentMethod = "Cash"
	PaymentVenmo      PaymentMethod = "Venmo"
	PaymentPayPal     PaymentMethod = "PayPal"
)

// DefaultPaymentMethod is stored whenever the input is empty or unrecognized.
const DefaultPaymentMethod = PaymentCreditCard

var paymentAliases = map[string]PaymentMethod{
	"credit":      PaymentCreditCard,
	"credit card": PaymentCreditCard,
	"creditcard":  PaymentCreditCard,
	"credit_card": PaymentCreditCard,
	"card":        PaymentCreditCard,
	"debit":       PaymentDebitCard,
	"debit card":  PaymentDebitCard,
	"debitcard":   PaymentDebitCard,
	"debit_card":  PaymentDebitCard,
	"cash":        PaymentCash,
	"venmo":       PaymentVenmo,
	"paypal":      PaymentPayPal,
	"pay pal":     PaymentPayPal,
}

// NormalizePaymentMethod folds free-form input onto the fixed label set.
// Unknown values fall back to DefaultPaymentMethod instead of failing.
func NormalizePaymentMethod(input string) PaymentMethod {
	key := strings.ToLower(strings.Join(strings.Fields(input), " "))
	if pm, ok := paymentAliases[key]; ok {
		return pm
	}
	return DefaultPaymentMethod
}

/*
Package payment formats bank-readable payment references.

The venue displays a Short Payment Descriptor (SPAYD) string, rendered as
a QR code by the presentation layer, when a customer pays a top-up by bank
transfer. This is pure formatting: nothing here touches the ledger, and
only the payment_method tag is ever recorded there.

Format: SPD*1.0*ACC:<account>*AM:<amount>*CC:<currency>*MSG:<message>
*/
package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatSPAYD builds an SPD 1.0 payment descriptor. The amount is rendered
// with two decimal places as banks expect. Asterisks are the SPAYD field
// separator, so they are stripped from free-text fields.
func FormatSPAYD(account string, amount decimal.Decimal, currency, message string) string {
	parts := []string{
		"SPD*1.0",
		"ACC:" + sanitize(account),
		"AM:" + amount.StringFixed(2),
		"CC:" + sanitize(currency),
	}
	if message != "" {
		parts = append(parts, "MSG:"+sanitize(message))
	}
	return strings.Join(parts, "*")
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "*", "")
}

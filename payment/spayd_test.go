package payment_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/venuepass/pass-engine/payment"
)

func TestFormatSPAYD_FullDescriptor(t *testing.T) {
	got := payment.FormatSPAYD(
		"CZ6508000000192000145399",
		decimal.NewFromInt(1200),
		"CZK",
		"10 Hour Pass",
	)
	assert.Equal(t, "SPD*1.0*ACC:CZ6508000000192000145399*AM:1200.00*CC:CZK*MSG:10 Hour Pass", got)
}

func TestFormatSPAYD_OmitsEmptyMessage(t *testing.T) {
	got := payment.FormatSPAYD("CZ6508000000192000145399", decimal.NewFromFloat(450.5), "CZK", "")
	assert.Equal(t, "SPD*1.0*ACC:CZ6508000000192000145399*AM:450.50*CC:CZK", got)
}

func TestFormatSPAYD_StripsFieldSeparator(t *testing.T) {
	// Asterisks delimit SPAYD fields and must never leak from free text.
	got := payment.FormatSPAYD("CZ65*0800", decimal.NewFromInt(100), "CZK", "pass*x")
	assert.Equal(t, "SPD*1.0*ACC:CZ650800*AM:100.00*CC:CZK*MSG:passx", got)
}

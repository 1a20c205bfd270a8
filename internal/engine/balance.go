package engine

import (
	"encoding/json"

	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/smartcode"
	"github.com/shopspring/decimal"
)

// balanceEpsilon is the tolerated rounding slack per currency group:
// 0.01 of the minor currency unit.
var balanceEpsilon = decimal.NewFromFloat(0.01)

// lineCurrency returns the currency a line balances in: an explicit
// line_data.currency when present, otherwise the header currency.
func lineCurrency(line *models.TransactionLine, headerCurrency string) string {
	if len(line.LineData) > 0 {
		var data struct {
			Currency string `json:"currency"`
		}
		if err := json.Unmarshal(line.LineData, &data); err == nil && data.Currency != "" {
			return data.Currency
		}
	}
	return headerCurrency
}

// validateLedgerBalance asserts sum(DR) == sum(CR) within epsilon for each
// currency group of the ledger-classified lines. Lines without a ledger
// smart code, or without a DR/CR side, are informational and ignored.
func validateLedgerBalance(lines []*models.TransactionLine, headerCurrency string) error {
	type sums struct {
		debit  decimal.Decimal
		credit decimal.Decimal
	}
	byCurrency := make(map[string]*sums)

	for _, line := range lines {
		if !smartcode.IsLedgerLine(line.SmartCode) {
			continue
		}
		side := line.LedgerSide()
		if side != models.LedgerSideDebit && side != models.LedgerSideCredit {
			continue
		}

		currency := lineCurrency(line, headerCurrency)
		group, ok := byCurrency[currency]
		if !ok {
			group = &sums{}
			byCurrency[currency] = group
		}

		if side == models.LedgerSideDebit {
			group.debit = group.debit.Add(line.LineAmount)
		} else {
			group.credit = group.credit.Add(line.LineAmount)
		}
	}

	for currency, group := range byCurrency {
		diff := group.debit.Sub(group.credit).Abs()
		if diff.GreaterThan(balanceEpsilon) {
			return NewError(CodeUnbalancedLedger,
				"ledger lines do not balance for %s: debit=%s credit=%s",
				currency, group.debit.String(), group.credit.String())
		}
	}
	return nil
}

// computeTotalAmount derives the customer-facing total: the sum of
// line_amount over all lines except settlement/cost lines (payment and
// commission types), which are not part of the sale.
func computeTotalAmount(lines []*models.TransactionLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if line.LineType == models.LineTypePayment || line.LineType == models.LineTypeCommission {
			continue
		}
		total = total.Add(line.LineAmount)
	}
	return total
}

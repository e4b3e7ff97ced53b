package parser

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParsedTransaction is one candidate line item produced by Parse.
type ParsedTransaction struct {
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	RawText     string
	NeedsReview bool
}

// Parser extracts candidate transactions from raw statement text. The clock
// is injectable so Parse stays a pure function of its inputs under test.
type Parser struct {
	now func() time.Time
}

// New creates a parser using the wall clock.
func New() *Parser {
	return &Parser{now: time.Now}
}

// NewWithClock creates a parser with a fixed clock, for tests.
func NewWithClock(now func() time.Time) *Parser {
	return &Parser{now: now}
}

// Parse splits text into lines and emits one transaction per line that
// contains a dollar amount ($ followed by digits, a decimal point and two
// digits). Only the first amount on a line is used; a line carrying more
// than one amount is flagged for review. The transaction date is the parse
// time: no date is extracted from the line itself.
func (p *Parser) Parse(text string) []ParsedTransaction {
	now := p.now()

	var txs []ParsedTransaction
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		matches := amountRe.FindAllStringSubmatch(trimmed, 2)
		if len(matches) == 0 {
			continue
		}

		amount, err := decimal.NewFromString(matches[0][1])
		if err != nil {
			continue
		}

		txs = append(txs, ParsedTransaction{
			Description: trimmed,
			Amount:      amount,
			Date:        now,
			RawText:     trimmed,
			NeedsReview: len(matches) > 1,
		})
	}
	return txs
}

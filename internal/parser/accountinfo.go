package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ivolkov/statement-ingest/internal/domain"
)

// amountRe matches a dollar amount: $ followed by digits, a decimal point
// and two digits.
var amountRe = regexp.MustCompile(`\$(\d+\.\d{2})`)

// knownInstitutions maps statement-text markers to canonical institution
// names. First hit wins, so more specific markers come first.
var knownInstitutions = []struct {
	marker string
	name   string
}{
	{"bank of america", "Bank of America"},
	{"wells fargo", "Wells Fargo"},
	{"capital one", "Capital One"},
	{"american express", "American Express"},
	{"chase", "Chase"},
	{"citibank", "Citibank"},
	{"citi", "Citi"},
	{"discover", "Discover"},
	{"us bank", "US Bank"},
	{"u.s. bank", "US Bank"},
	{"pnc", "PNC"},
	{"td bank", "TD Bank"},
	{"barclays", "Barclays"},
	{"hsbc", "HSBC"},
}

var (
	// "account ending in 1234", "card ending 1234"
	endingInRe = regexp.MustCompile(`(?i)(?:account|card)(?:\s+number)?\s+ending(?:\s+in)?\s+(\d{4})\b`)
	// "****1234", "xxxx 1234"
	maskedRe = regexp.MustCompile(`(?i)[x*]{4,}\s*(\d{4})\b`)

	balanceRe = regexp.MustCompile(`(?i)(?:new|ending|closing|current|statement)\s+balance[^$\d]*\$?(-?[\d,]+\.\d{2})`)

	accountNameRe = regexp.MustCompile(`(?i)account\s+name\s*[:\-]\s*(.+)`)

	// "Statement Period: 01/01/2024 - 01/31/2024" and variants
	periodRe = regexp.MustCompile(`(?i)(?:statement|billing)\s+period\s*[:\-]?\s*(\S+(?:\s\d{1,2},\s*\d{4})?)\s*(?:to|through|[-\x{2013}])\s*(\S+(?:\s\d{1,2},\s*\d{4})?)`)
)

var periodDateFormats = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"01/02/06",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ExtractAccountInfo pulls account metadata out of extracted statement text.
// Every field is best-effort; missing fields stay zero-valued.
func ExtractAccountInfo(text string) domain.AccountInfo {
	info := domain.AccountInfo{}
	lower := strings.ToLower(text)

	for _, inst := range knownInstitutions {
		if strings.Contains(lower, inst.marker) {
			info.Institution = inst.name
			break
		}
	}

	if m := endingInRe.FindStringSubmatch(text); m != nil {
		info.LastFour = m[1]
	} else if m := maskedRe.FindStringSubmatch(text); m != nil {
		info.LastFour = m[1]
	}

	if m := balanceRe.FindStringSubmatch(text); m != nil {
		raw := strings.ReplaceAll(m[1], ",", "")
		if bal, err := decimal.NewFromString(raw); err == nil {
			info.Balance = &bal
		}
	}

	if m := accountNameRe.FindStringSubmatch(text); m != nil {
		info.AccountName = strings.TrimSpace(m[1])
	}

	info.AccountType = detectAccountType(lower)

	if m := periodRe.FindStringSubmatch(text); m != nil {
		if start := parsePeriodDate(m[1]); start != nil {
			if end := parsePeriodDate(m[2]); end != nil && !end.Before(*start) {
				info.PeriodStart = start
				info.PeriodEnd = end
			}
		}
	}

	return info
}

func detectAccountType(lower string) string {
	switch {
	case strings.Contains(lower, "credit card") ||
		strings.Contains(lower, "visa") ||
		strings.Contains(lower, "mastercard"):
		return domain.AccountTypeCreditCard
	case strings.Contains(lower, "checking"):
		return domain.AccountTypeChecking
	case strings.Contains(lower, "savings"):
		return domain.AccountTypeSavings
	}
	return domain.AccountTypeOther
}

func parsePeriodDate(s string) *time.Time {
	s = strings.Trim(strings.TrimSpace(s), ",.")
	for _, layout := range periodDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultLocale         = "pt-BR"
	DefaultCurrencySymbol = "R$"
)

var thousand = decimal.NewFromInt(1000)

// Formatter renders Money for people: locale digit grouping, two
// fractional digits and a currency symbol.
type Formatter struct {
	symbol  string
	group   string
	decimal string
}

// NewFormatter builds a formatter for a BCP 47 locale tag such as "pt-BR".
func NewFormatter(locale, symbol string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	return newFormatter(tag, symbol), nil
}

func newFormatter(tag language.Tag, symbol string) *Formatter {
	group, dec := separators(message.NewPrinter(tag))
	return &Formatter{symbol: symbol, group: group, decimal: dec}
}

// separators reads the locale's digit group and decimal separators off a
// sample number. Amounts themselves never pass through the printer.
func separators(p *message.Printer) (group, dec string) {
	var runs []string
	var cur strings.Builder
	for _, r := range p.Sprintf("%.1f", 1234567.5) {
		if unicode.IsDigit(r) {
			if cur.Len() > 0 {
				runs = append(runs, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	switch len(runs) {
	case 0:
		return "", "."
	case 1:
		return "", runs[0]
	}
	return runs[0], runs[len(runs)-1]
}

var defaultFormatter = newFormatter(language.BrazilianPortuguese, DefaultCurrencySymbol)

// DefaultFormatter returns the pt-BR / R$ formatter.
func DefaultFormatter() *Formatter {
	return defaultFormatter
}

// Currency renders e.g. "R$ 12.345,60". Negative amounts get a leading minus.
func (f *Formatter) Currency(m Money) string {
	rounded := m.Amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	whole, frac, _ := strings.Cut(rounded.StringFixed(2), ".")
	return sign + f.symbol + " " + groupDigits(whole, f.group) + f.decimal + frac
}

// groupDigits inserts sep between every three digits, counting from the right.
func groupDigits(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteString(sep)
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Compact renders chart-axis labels: amounts of at least a thousand in
// absolute value become "R$1.2k", anything smaller uses Currency.
func (f *Formatter) Compact(m Money) string {
	if m.Amount.Abs().GreaterThanOrEqual(thousand) {
		return f.symbol + m.Amount.Div(thousand).StringFixed(1) + "k"
	}
	return f.Currency(m)
}

// FormatCurrency renders m with the default formatter.
func FormatCurrency(m Money) string {
	return defaultFormatter.Currency(m)
}

// FormatCompact renders m in compact form with the default formatter.
func FormatCompact(m Money) string {
	return defaultFormatter.Compact(m)
}

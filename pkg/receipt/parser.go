package receipt

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var log = logrus.StandardLogger().WithField("package", "receipt")

// The labels below are the de facto schema of the bank's receipt template.
var (
	payerRegexp     = regexp.MustCompile(`(?i)Payer\s*:?\s*(.*?)\s+Account`)
	receiverRegexp  = regexp.MustCompile(`(?i)Receiver\s*:?\s*(.*?)\s+Account`)
	accountRegexp   = regexp.MustCompile(`(?i)Account\s*:?\s*([A-Z0-9]?\*{4}\d{4})`)
	reasonRegexp    = regexp.MustCompile(`(?i)Reason\s*/\s*Type of service\s*:?\s*(.*?)\s+Transferred Amount`)
	amountRegexp    = regexp.MustCompile(`(?i)Transferred Amount\s*:?\s*([\d,]+\.\d{2})\s*ETB`)
	referenceRegexp = regexp.MustCompile(`(?i)Reference No\.?\s*\(VAT Invoice No\)\s*:?\s*([A-Z0-9]+)`)
	dateRegexp      = regexp.MustCompile(`(?i)Payment Date & Time\s*:?\s*(\d{1,2}/\d{1,2}/\d{4}),\s*(\d{1,2}:\d{2}(?::\d{2})?)\s*([AP]M)`)

	payerLabelRegexp    = regexp.MustCompile(`(?i)\bPayer\b`)
	receiverLabelRegexp = regexp.MustCompile(`(?i)\bReceiver\b`)
)

// dateLayouts are tried in order; month/day wins over day/month when both parse.
var dateLayouts = []string{
	"1/2/2006, 3:04:05 PM",
	"2/1/2006, 3:04:05 PM",
	"1/2/2006, 3:04 PM",
	"2/1/2006, 3:04 PM",
}

// EastAfricaTime is the zone the bank prints receipt timestamps in.
var EastAfricaTime = time.FixedZone("EAT", 3*60*60)

type Parser struct {
	location   *time.Location
	positional bool
}

type Option func(*Parser)

// WithLocation sets the zone receipt timestamps are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		p.location = loc
	}
}

// WithPositionalAccounts assigns the first masked account to the payer and
// the second to the receiver even when both labels are present. A receipt
// with an unreadable payer account then reports the receiver's account as
// the payer's, so the default anchors each account to its label instead.
func WithPositionalAccounts() Option {
	return func(p *Parser) {
		p.positional = true
	}
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{
		location: EastAfricaTime,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the receipt fields from raw PDF bytes. It never fails:
// anything that cannot be read is reported through Fields.Missing and
// Fields.Error, and bytes that are not a readable PDF set Fields.Critical.
func (p *Parser) Parse(pdfBytes []byte) Fields {
	text, err := ExtractText(pdfBytes)
	if err != nil {
		log.Errorf("critical error parsing PDF data: %v", err)
		return Fields{
			Missing:  RequiredFields(),
			Error:    fmt.Sprintf("critical error parsing PDF data: %v", err),
			Critical: true,
		}
	}
	return p.ParseText(text)
}

// ParseText extracts the receipt fields from already extracted text. Each
// field is matched independently so that one missing label never hides
// the others.
func (p *Parser) ParseText(text string) Fields {
	text = Normalize(text)

	var f Fields
	f.Payer = p.name(payerRegexp, text)
	f.Receiver = p.name(receiverRegexp, text)
	f.PayerAccount, f.ReceiverAccount = p.accounts(text)
	f.Reason = submatch(reasonRegexp, text)
	f.Amount = amount(text)
	f.Reference = submatch(referenceRegexp, text)
	f.Date = p.date(text)

	f.Missing = f.missing()
	if len(f.Missing) > 0 {
		f.Error = "could not extract all required fields from PDF, missing: " + strings.Join(f.Missing, ", ")
		log.Warnf("%s", f.Error)
		log.Debugf("payer=%q payerAccount=%q receiver=%q receiverAccount=%q amount=%v date=%v reference=%q",
			f.Payer, f.PayerAccount, f.Receiver, f.ReceiverAccount, f.Amount, f.Date, f.Reference)
	}
	return f
}

func (p *Parser) name(re *regexp.Regexp, text string) string {
	v := submatch(re, text)
	if v == "" {
		return ""
	}
	// A Caser keeps state between calls, so each name gets its own.
	return cases.Title(language.Und).String(strings.ToLower(v))
}

// accounts returns the payer and receiver masked account numbers. The
// first masked account belongs to the payer and the second to the
// receiver. Unless positional, when both labels are present each position
// is looked up in its own section of the text, so that a missing payer
// account leaves payer_account alone missing.
func (p *Parser) accounts(text string) (payer string, receiver string) {
	if !p.positional {
		pl := payerLabelRegexp.FindStringIndex(text)
		rl := receiverLabelRegexp.FindStringIndex(text)
		if pl != nil && rl != nil && pl[1] <= rl[0] {
			return submatch(accountRegexp, text[pl[1]:rl[0]]), submatch(accountRegexp, text[rl[1]:])
		}
	}

	matches := accountRegexp.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		payer = matches[0][1]
	}
	if len(matches) > 1 {
		receiver = matches[1][1]
	}
	return payer, receiver
}

func amount(text string) decimal.NullDecimal {
	v := submatch(amountRegexp, text)
	if v == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
	if err != nil {
		log.Warnf("unable to parse amount %q: %v", v, err)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Round(2))
}

func (p *Parser) date(text string) *time.Time {
	m := dateRegexp.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	raw := fmt.Sprintf("%s, %s %s", m[1], m[2], strings.ToUpper(m[3]))
	t, err := ParseDate(raw, p.location)
	if err != nil {
		log.Warnf("%v", err)
		return nil
	}
	return &t
}

// ParseDate parses a receipt timestamp such as "3/15/2024, 2:30:45 PM"
// trying every known layout in order.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse date %q with any known format", raw)
}

func submatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

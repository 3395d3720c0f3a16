// Package receipttest builds small, valid receipt PDFs for tests.
package receipttest

import (
	"bytes"
	"fmt"
	"strings"
)

// Receipt holds the values printed on a synthetic receipt. Empty values are
// printed as empty strings, not omitted, unless the label itself is listed
// in Omit.
type Receipt struct {
	Payer           string
	PayerAccount    string
	Receiver        string
	ReceiverAccount string
	Date            string
	Reference       string
	Reason          string
	Amount          string

	// Omit lists label lines to leave out entirely (see the Label* constants).
	Omit []string
}

const (
	LabelPayer           = "Payer"
	LabelPayerAccount    = "PayerAccount"
	LabelReceiver        = "Receiver"
	LabelReceiverAccount = "ReceiverAccount"
	LabelDate            = "Payment Date & Time"
	LabelReference       = "Reference No. (VAT Invoice No)"
	LabelReason          = "Reason / Type of service"
	LabelAmount          = "Transferred Amount"
)

// Default returns a complete receipt addressed to account ending 5678.
func Default() Receipt {
	return Receipt{
		Payer:           "ABEBE KEBEDE TESFAYE",
		PayerAccount:    "1****1234",
		Receiver:        "EDIR SAVINGS ASSOCIATION",
		ReceiverAccount: "1****5678",
		Date:            "3/15/2024, 2:30:45 PM",
		Reference:       "FT24075ABCD1",
		Reason:          "monthly contribution",
		Amount:          "1,234.56",
	}
}

func (r Receipt) omitted(label string) bool {
	for _, o := range r.Omit {
		if o == label {
			return true
		}
	}
	return false
}

// Lines returns the receipt text, one line per printed row.
func (r Receipt) Lines() []string {
	lines := []string{
		"Commercial Bank of Ethiopia",
		"VAT Invoice / Customer Receipt",
	}
	add := func(label string, line string) {
		if !r.omitted(label) {
			lines = append(lines, line)
		}
	}
	add(LabelPayer, "Payer "+r.Payer)
	add(LabelPayerAccount, "Account "+r.PayerAccount)
	add(LabelReceiver, "Receiver "+r.Receiver)
	add(LabelReceiverAccount, "Account "+r.ReceiverAccount)
	add(LabelDate, "Payment Date & Time "+r.Date)
	add(LabelReference, "Reference No. (VAT Invoice No) "+r.Reference)
	add(LabelReason, "Reason / Type of service "+r.Reason)
	add(LabelAmount, "Transferred Amount "+r.Amount+" ETB")
	lines = append(lines,
		"Commission or Service Charge 0.00 ETB",
		"Thank you for banking with Commercial Bank of Ethiopia",
	)
	return lines
}

// Text returns the receipt as the single line the extractor works on.
func (r Receipt) Text() string {
	return strings.Join(r.Lines(), " ")
}

// PDF renders the receipt as a one page PDF.
func (r Receipt) PDF() []byte {
	return PDF(r.Lines())
}

// PDF renders lines as a one page PDF using the standard Helvetica font,
// one text row per line.
func PDF(lines []string) []byte {
	var content bytes.Buffer
	y := 780
	for _, l := range lines {
		fmt.Fprintf(&content, "BT /F1 10 Tf 50 %d Td (%s) Tj ET\n", y, escape(l))
		y -= 16
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, o := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

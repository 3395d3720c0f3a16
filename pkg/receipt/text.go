package receipt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
)

// ExtractText returns the text of every page of the PDF in reading order,
// with all whitespace runs collapsed to a single space.
func ExtractText(b []byte) (text string, err error) {
	// The PDF reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("unable to open PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("unable to read page %d: %w", i, err)
		}
		for _, row := range rows {
			sb.WriteString(joinRow(row.Content))
			sb.WriteString(" ")
		}
	}
	return Normalize(sb.String()), nil
}

// joinRow concatenates the text runs of a row, inserting a space where the
// layout leaves a visible horizontal gap between two runs, where a run goes
// back to the left (a new line folded into the row), or where the reader
// reported no geometry at all.
func joinRow(words []pdf.Text) string {
	var sb strings.Builder
	for i, w := range words {
		if i > 0 && separated(words[i-1], w) {
			sb.WriteString(" ")
		}
		sb.WriteString(w.S)
	}
	return sb.String()
}

func separated(prev, w pdf.Text) bool {
	if w.FontSize == 0 || prev.FontSize == 0 {
		return true
	}
	if w.X < prev.X {
		return true
	}
	return w.X-(prev.X+prev.W) > 0.15*w.FontSize
}

// Normalize collapses every whitespace run to a single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dotless ı and the capital dotted İ do not decompose to a base letter under NFD.
var turkishFold = strings.NewReplacer("ı", "i", "İ", "i", "ß", "ss", "ø", "o", "Ø", "o", "æ", "ae", "Æ", "ae")

func foldAccents(s string) string {
	s = turkishFold.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeHeader turns a spreadsheet header into its lookup key:
// lower-case, accents folded to base letters, only letters and digits kept.
func NormalizeHeader(h string) string {
	h = strings.ToLower(foldAccents(strings.TrimSpace(h)))

	var b strings.Builder
	b.Grow(len(h))
	for _, r := range h {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeInvoiceNo is the key used for invoice number equality.
func NormalizeInvoiceNo(s string) string {
	s = strings.ToUpper(foldAccents(strings.TrimSpace(s)))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

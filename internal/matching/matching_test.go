package matching

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Fatura Numarası":   "faturanumarasi",
		"  İTHALAT Tarihi ": "ithalattarihi",
		"Ağırlık (KG)":      "agirlikkg",
		"Gümrük/Çıkış":      "gumrukcikis",
		"Invoice No.":       "invoiceno",
		"Café Crème":        "cafecreme",
	}
	for in, want := range cases {
		if got := NormalizeHeader(in); got != want {
			t.Fatalf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeInvoiceNo(t *testing.T) {
	if got := NormalizeInvoiceNo(" inv-2024/001 "); got != "INV2024001" {
		t.Fatalf("unexpected invoice key %q", got)
	}
	if NormalizeInvoiceNo("ABC 12") != NormalizeInvoiceNo("abc-12") {
		t.Fatal("expected spacing and case to be ignored")
	}
}

func TestDictionaryLookup(t *testing.T) {
	d, err := DefaultDictionary()
	if err != nil {
		t.Fatalf("default dictionary: %v", err)
	}

	for header, want := range map[string]string{
		"FATURA NO":       "invoice_no",
		"Beyanname Tarihi": "import_dec_date",
		"Renk":            "color",
		"AWB No":          "awb_number",
		"import_dec_date": "import_dec_date",
	} {
		got, ok := d.Lookup(header)
		if !ok || got != want {
			t.Fatalf("Lookup(%q) = %q,%v want %q", header, got, ok, want)
		}
	}

	if _, ok := d.Lookup("something else"); ok {
		t.Fatal("unexpected match for unknown header")
	}
	if !d.IsDateField("arrival_date") || d.IsDateField("amount") {
		t.Fatal("unexpected date field set")
	}
}

func TestResolveColumns_PositionalFirst(t *testing.T) {
	d, err := DefaultDictionary()
	if err != nil {
		t.Fatalf("default dictionary: %v", err)
	}

	headers := make([]string, 15)
	headers[0] = "Invoice No"
	headers[1] = "Amount"
	// a named declaration column outside the fixed slot must not win
	headers[2] = "Beyanname No"
	headers[12] = ""
	headers[13] = "Notes"
	headers[14] = "Color"

	cols := d.ResolveColumns(headers)

	if cols["invoice_no"] != 0 || cols["amount"] != 1 || cols["color"] != 14 {
		t.Fatalf("unexpected name mapping: %v", cols)
	}
	if cols["import_dec_number"] != 12 {
		t.Fatalf("expected positional import_dec_number at 12, got %d", cols["import_dec_number"])
	}
	if cols["import_dec_date"] != 13 {
		t.Fatalf("expected positional import_dec_date at 13, got %d", cols["import_dec_date"])
	}
}

func TestResolveColumns_ShortHeaderSkipsPositional(t *testing.T) {
	d, _ := DefaultDictionary()
	cols := d.ResolveColumns([]string{"Invoice", "Beyanname No"})
	if cols["import_dec_number"] != 1 {
		t.Fatalf("expected name lookup to fill import_dec_number, got %v", cols)
	}
	if cols.Has("import_dec_date") {
		t.Fatal("import_dec_date should stay unmapped")
	}
}

func TestLoadDictionary_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	content := "fields:\n  color:\n    - shade\npositional:\n  0: awb_number\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := LoadDictionary(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f, ok := d.Lookup("Shade"); !ok || f != "color" {
		t.Fatalf("expected shade alias, got %q %v", f, ok)
	}
	// default aliases survive
	if f, ok := d.Lookup("Renk"); !ok || f != "color" {
		t.Fatalf("expected renk alias, got %q %v", f, ok)
	}

	cols := d.ResolveColumns(make([]string, 20))
	if cols["awb_number"] != 0 || cols.Has("import_dec_number") {
		t.Fatalf("expected file positional map to replace defaults, got %v", cols)
	}
}

func TestLoadDictionary_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	_ = os.WriteFile(path, []byte("fields:\n  nickname:\n    - nick\n"), 0o644)
	if _, err := LoadDictionary(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestCoerceDate(t *testing.T) {
	if got := CoerceDate("45123"); got != "2023-07-16" {
		t.Fatalf("serial: got %q", got)
	}
	if got := CoerceDate("16.07.2023"); got != "16.07.2023" {
		t.Fatalf("dotted date should pass through, got %q", got)
	}
	if got := CoerceDate("2023-07-16"); got != "2023-07-16" {
		t.Fatalf("iso date should pass through, got %q", got)
	}
	if got := CoerceDate(""); got != "" {
		t.Fatalf("empty: got %q", got)
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"1.234,56":   "1234.56",
		"1,234.56":   "1234.56",
		"1234,5":     "1234.5",
		"1,234,567":  "1234567",
		"$ 1 000.10": "1000.1",
		"-12.5":      "-12.5",
		"1.234.567":  "1234567",
	}
	for in, want := range cases {
		got, ok := ParseAmount(in)
		if !ok || got.String() != want {
			t.Fatalf("ParseAmount(%q) = %s,%v want %s", in, got, ok, want)
		}
	}
	if _, ok := ParseAmount("n/a"); ok {
		t.Fatal("expected n/a to be unparseable")
	}
}

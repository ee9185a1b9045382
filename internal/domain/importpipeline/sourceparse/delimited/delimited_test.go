package delimited

import (
	"context"
	"testing"

	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
)

func TestParse_SingleAmountColumn(t *testing.T) {
	csvData := "Date,Description,Amount,Category\n" +
		"2024-01-15,Coffee Shop,-4.50,Dining\n" +
		"2024-01-16,Payroll,2500.00,Income\n"

	p := NewParser()
	result, err := p.Parse(context.Background(), []byte(csvData), sourceparse.Options{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(result.MissingRequired) > 0 {
		t.Fatalf("unexpected missing required fields: %v", result.MissingRequired)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(result.Rows))
	}
	if result.Rows[0].AmountCents != -450 {
		t.Errorf("Rows[0].AmountCents = %d, want -450", result.Rows[0].AmountCents)
	}
	if result.Rows[1].AmountCents != 250000 {
		t.Errorf("Rows[1].AmountCents = %d, want 250000", result.Rows[1].AmountCents)
	}
	if result.DetectedEncoding != "utf-8" {
		t.Errorf("DetectedEncoding = %q, want utf-8", result.DetectedEncoding)
	}
}

func TestParse_DoubleEntryEuropeanSeparator(t *testing.T) {
	csvData := "Data Mov.;Descrição;Débito;Crédito\n" +
		"15-01-2024;Supermercado;45,23;\n" +
		"16-01-2024;Salário;;1500,00\n"

	p := NewParser()
	result, err := p.Parse(context.Background(), []byte(csvData), sourceparse.Options{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(result.Rows))
	}
	if result.Rows[0].AmountCents != -4523 {
		t.Errorf("Rows[0].AmountCents = %d, want -4523 (debit is negative)", result.Rows[0].AmountCents)
	}
	if result.Rows[1].AmountCents != 150000 {
		t.Errorf("Rows[1].AmountCents = %d, want 150000 (credit is positive)", result.Rows[1].AmountCents)
	}
}

func TestParse_MissingRequiredColumnReturnsDiagnosticsOnly(t *testing.T) {
	// "date" is recognized, but neither a description nor an amount column is.
	csvData := "Date,Ref,Notes,Extra\n" + "2024-01-01,X1,note one,z\n"

	p := NewParser()
	result, err := p.Parse(context.Background(), []byte(csvData), sourceparse.Options{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(result.MissingRequired) == 0 {
		t.Fatal("expected missing required fields for an unrecognized header set")
	}
	if len(result.Rows) != 0 {
		t.Errorf("len(Rows) = %d, want 0 when mapping is unresolved", len(result.Rows))
	}
}

func TestParse_EmptyFile(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(context.Background(), []byte{}, sourceparse.Options{})
	if err != ErrEmptyFile {
		t.Fatalf("Parse() error = %v, want ErrEmptyFile", err)
	}
}

func TestParse_NoHeaderKeywordsFound(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(context.Background(), []byte("a,b,c\n1,2,3\n"), sourceparse.Options{})
	if err != ErrNoHeadersFound {
		t.Fatalf("Parse() error = %v, want ErrNoHeadersFound", err)
	}
}

func TestParse_ExplicitMappingSkipsSuggestion(t *testing.T) {
	csvData := "Col A,Col B,Col C,Col D\n" + "Date,Merchant,Amount,Ref\n" + "2024-02-01,Grocer,10.00,r1\n"

	mapping := &sourceparse.ColumnMapping{DateCol: 0, DescCol: 1, AmountCol: 2, DebitCol: -1, CreditCol: -1, CategoryCol: -1}
	p := NewParser()
	result, err := p.Parse(context.Background(), []byte(csvData), sourceparse.Options{Mapping: mapping})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(result.Rows))
	}
	if result.Rows[0].Description != "Grocer" {
		t.Errorf("Rows[0].Description = %q, want Grocer", result.Rows[0].Description)
	}
}

func TestParse_Windows1252Encoding(t *testing.T) {
	// "Descrição" encoded as windows-1252 (ã -> 0xE3) instead of UTF-8.
	raw := []byte("Date,Descri\xe7\xe3o,Amount,Categoria\n2024-03-01,Caf\xe9,3.50,Lazer\n")
	p := NewParser()
	result, err := p.Parse(context.Background(), raw, sourceparse.Options{})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if result.DetectedEncoding != "windows-1252" {
		t.Errorf("DetectedEncoding = %q, want windows-1252", result.DetectedEncoding)
	}
}

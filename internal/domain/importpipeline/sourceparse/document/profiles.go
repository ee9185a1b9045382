package document

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
	"github.com/finledger/pipeline/internal/domain/importpipeline/textnorm"
)

// IssuerProfile is the closed set of portable-document classifications.
type IssuerProfile string

const (
	ProfileInterStatement      IssuerProfile = "inter_statement"
	ProfileInterInvoice        IssuerProfile = "inter_invoice"
	ProfileMercadoPagoInvoice  IssuerProfile = "mercado_pago_invoice"
	ProfileMercadoPagoStatement IssuerProfile = "mercado_pago_statement"
	ProfileNubankInvoice       IssuerProfile = "nubank_invoice"
)

// lineExtractor is implemented by each issuer profile's dedicated
// line-rule extractor.
type lineExtractor interface {
	Profile() IssuerProfile
	DocumentType() string
	Matches(text string) bool
	Extract(text string) ([]sourceparse.ParsedRow, error)
}

var profiles = []lineExtractor{
	interStatementExtractor{},
	interInvoiceExtractor{},
	mercadoPagoInvoiceExtractor{},
	mercadoPagoStatementExtractor{},
	nubankInvoiceExtractor{},
}

// classify picks the profile whose Matches predicate fires against the
// normalized document text.
func classify(text string) (lineExtractor, bool) {
	normalized := textnorm.NormalizeForMatch(text)
	for _, p := range profiles {
		if p.Matches(normalized) {
			return p, true
		}
	}
	return nil, false
}

// positiveSignHints are lexical markers that make a line positive
// (reversal/credit/payment-received vocabulary). Without one, invoice lines
// are negative and statement lines take the sign of their money token.
var positiveSignHints = regexp.MustCompile(`ESTORNO|CREDITO|DEVOLUCAO|PAGAMENTO RECEBIDO`)

var moneyToken = regexp.MustCompile(`R?\$?\s*-?\d{1,3}(?:\.\d{3})*,\d{2}`)

func parseBRLToken(token string) (int64, error) {
	return textnorm.ParseAmount(token, true)
}

// footerDenylist is the shared base set of formatting/footer lines ignored
// across profiles (pagination artifacts, running totals, balance lines).
var footerDenylist = []string{
	"saldo do dia", "total", "-- pagina", "-- page", "of m --",
}

func isFooterLine(normalized string) bool {
	for _, d := range footerDenylist {
		if strings.Contains(normalized, strings.ToUpper(d)) {
			return true
		}
	}
	return false
}

// ---- inter_statement ----

type interStatementExtractor struct{}

func (interStatementExtractor) Profile() IssuerProfile { return ProfileInterStatement }
func (interStatementExtractor) DocumentType() string   { return "bank_statement" }
func (interStatementExtractor) Matches(text string) bool {
	return strings.Contains(text, "BANCO INTER") && strings.Contains(text, "EXTRATO")
}

var dayHeaderPattern = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4})`)

func (interStatementExtractor) Extract(text string) ([]sourceparse.ParsedRow, error) {
	var rows []sourceparse.ParsedRow
	var currentDate string

	for _, line := range strings.Split(text, "\n") {
		normalized := textnorm.NormalizeForMatch(line)
		if normalized == "" || isFooterLine(normalized) {
			continue
		}

		if m := dayHeaderPattern.FindStringSubmatch(line); m != nil {
			currentDate = m[1]
		}
		if currentDate == "" {
			continue
		}

		amountStr := moneyToken.FindString(line)
		if amountStr == "" {
			continue
		}
		cents, err := parseBRLToken(amountStr)
		if err != nil {
			continue
		}
		if positiveSignHints.MatchString(normalized) {
			cents = absInt64(cents)
		} else if !strings.Contains(amountStr, "-") {
			cents = absInt64(cents)
		} else {
			cents = -absInt64(cents)
		}

		date, err := textnorm.ParseFlexibleDate(currentDate, "", nil)
		if err != nil {
			continue
		}

		desc := strings.TrimSpace(strings.Replace(line, amountStr, "", 1))
		rows = append(rows, sourceparse.ParsedRow{
			Date:        date.Format("2006-01-02"),
			Description: textnorm.CleanDescription(desc),
			AmountCents: cents,
		})
	}

	if len(rows) == 0 {
		return nil, sourceparse.ErrNoTransactionsFound
	}
	return rows, nil
}

// ---- inter_invoice ----

type interInvoiceExtractor struct{}

func (interInvoiceExtractor) Profile() IssuerProfile { return ProfileInterInvoice }
func (interInvoiceExtractor) DocumentType() string   { return "credit_card_invoice" }
func (interInvoiceExtractor) Matches(text string) bool {
	return strings.Contains(text, "BANCO INTER") && strings.Contains(text, "FATURA")
}

var dueDatePattern = regexp.MustCompile(`VENCIMENTO[:\s]+(\d{2}/\d{2}/\d{4})`)
var invoiceLinePattern = regexp.MustCompile(`^(\d{2}/\d{2})\s+(.+)`)

func (e interInvoiceExtractor) Extract(text string) ([]sourceparse.ParsedRow, error) {
	dueDate, dueMonth, dueYear, ok := findDueDate(text)
	if !ok {
		return nil, sourceparse.ErrNoTransactionsFound
	}
	_ = dueDate

	var rows []sourceparse.ParsedRow
	for _, line := range strings.Split(text, "\n") {
		normalized := textnorm.NormalizeForMatch(line)
		if normalized == "" || isFooterLine(normalized) {
			continue
		}

		m := invoiceLinePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		amountStr := moneyToken.FindString(line)
		if amountStr == "" {
			continue
		}
		cents, err := parseBRLToken(amountStr)
		if err != nil {
			continue
		}
		if !positiveSignHints.MatchString(normalized) {
			cents = -absInt64(cents)
		} else {
			cents = absInt64(cents)
		}

		day, month, err := splitDDMM(m[1])
		if err != nil {
			continue
		}
		year := dueYear
		if month > dueMonth {
			year--
		}

		desc := strings.TrimSpace(strings.Replace(m[2], amountStr, "", 1))
		rows = append(rows, sourceparse.ParsedRow{
			Date:         time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			Description:  textnorm.CleanDescription(desc),
			AmountCents:  cents,
			DocumentType: e.DocumentType(),
		})
	}

	if len(rows) == 0 {
		return nil, sourceparse.ErrNoTransactionsFound
	}
	return rows, nil
}

func findDueDate(text string) (time.Time, int, int, bool) {
	m := dueDatePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, 0, 0, false
	}
	t, err := textnorm.ParseFlexibleDate(m[1], "", nil)
	if err != nil {
		return time.Time{}, 0, 0, false
	}
	return t, int(t.Month()), t.Year(), true
}

func splitDDMM(s string) (int, int, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, sourceparse.ErrNoTransactionsFound
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return day, month, nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ---- mercado_pago_invoice ----

type mercadoPagoInvoiceExtractor struct{ interInvoiceExtractor }

func (mercadoPagoInvoiceExtractor) Profile() IssuerProfile { return ProfileMercadoPagoInvoice }
func (mercadoPagoInvoiceExtractor) Matches(text string) bool {
	return strings.Contains(text, "MERCADO PAGO") && strings.Contains(text, "FATURA")
}

// ---- mercado_pago_statement ----

type mercadoPagoStatementExtractor struct{ interStatementExtractor }

func (mercadoPagoStatementExtractor) Profile() IssuerProfile { return ProfileMercadoPagoStatement }
func (mercadoPagoStatementExtractor) Matches(text string) bool {
	return strings.Contains(text, "MERCADO PAGO") && (strings.Contains(text, "EXTRATO") || strings.Contains(text, "MOVIMENTACOES"))
}

// ---- nubank_invoice ----

type nubankInvoiceExtractor struct{ interInvoiceExtractor }

func (nubankInvoiceExtractor) Profile() IssuerProfile { return ProfileNubankInvoice }
func (nubankInvoiceExtractor) Matches(text string) bool {
	return strings.Contains(text, "NUBANK") && strings.Contains(text, "FATURA")
}

// Package textnorm folds encodings, repairs mojibake, strips diacritics and
// parses the flexible date/money formats found across bank and card
// statement exports.
package textnorm

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

var (
	ErrInvalidAmount = errors.New("invalid amount format")
	ErrInvalidDate   = errors.New("invalid date format")
)

// AmountConfig specifies how to parse amount strings.
type AmountConfig struct {
	IsEuropean    bool // European format: 1.234,56 vs American: 1,234.56
	IsDoubleEntry bool // Separate debit/credit columns vs single amount
}

// ParseAmount converts a string amount to cents (int64).
// Supports European (1.234,56), American (1,234.56), a leading/trailing
// "R$" marker, and a trailing "C"/"D" suffix where D flips the sign negative.
func ParseAmount(raw string, isEuropean bool) (int64, error) {
	cents, err := parseMoneyInputCents(raw, isEuropean)
	if err != nil {
		return 0, err
	}
	return cents, nil
}

// ParseMoneyInput is the §4.1 contract entry point: accepts Brazilian
// grouping, plain ASCII, an "R$" marker, and a "C"/"D" suffix. Whichever of
// "," and "." occurs last is taken as the decimal separator; a token that
// mixes both is not rejected as ambiguous. Fails with ErrInvalidAmount only
// when the cleaned token does not parse as a number.
func ParseMoneyInput(raw string) (int64, error) {
	isEuropean := looksEuropean(raw)
	return parseMoneyInputCents(raw, isEuropean)
}

func looksEuropean(raw string) bool {
	lastComma := strings.LastIndex(raw, ",")
	lastDot := strings.LastIndex(raw, ".")
	if lastComma == -1 {
		return false
	}
	if lastDot == -1 {
		return true
	}
	return lastComma > lastDot
}

func parseMoneyInputCents(raw string, isEuropean bool) (int64, error) {
	if raw == "" {
		return 0, nil
	}

	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, "R$", "")
	cleaned = strings.TrimSpace(cleaned)

	negativeFromSuffix := false
	if strings.HasSuffix(cleaned, "D") && isCDSuffixCandidate(cleaned) {
		negativeFromSuffix = true
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "D"))
	} else if strings.HasSuffix(cleaned, "C") && isCDSuffixCandidate(cleaned) {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "C"))
	}

	numeric := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, cleaned)

	if numeric == "" {
		return 0, nil
	}

	isNegative := strings.HasPrefix(numeric, "-")
	numeric = strings.TrimPrefix(numeric, "-")

	if isEuropean {
		numeric = strings.ReplaceAll(numeric, ".", "")
		numeric = strings.ReplaceAll(numeric, ",", ".")
	} else {
		numeric = strings.ReplaceAll(numeric, ",", "")
	}

	val, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	cents := int64(math.Round(val * 100))
	if isNegative || negativeFromSuffix {
		cents = -cents
	}

	return cents, nil
}

// isCDSuffixCandidate guards against treating a trailing currency-code
// letter (e.g. "USD") as a C/D debit-credit marker: the suffix only counts
// when the remainder still looks like a plain numeric amount.
func isCDSuffixCandidate(s string) bool {
	trimmed := strings.TrimSpace(strings.TrimRight(s, "CD"))
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	return unicode.IsDigit(rune(last))
}

// NormalizeDebitCredit merges separate debit and credit columns into a
// single signed amount. Debit = negative (money out), Credit = positive
// (money in).
func NormalizeDebitCredit(debitStr, creditStr string, isEuropean bool) (int64, error) {
	debitStr = strings.TrimSpace(debitStr)
	creditStr = strings.TrimSpace(creditStr)

	if debitStr != "" {
		amount, err := ParseAmount(debitStr, isEuropean)
		if err != nil {
			return 0, err
		}
		if amount > 0 {
			amount = -amount
		}
		return amount, nil
	}

	if creditStr != "" {
		amount, err := ParseAmount(creditStr, isEuropean)
		if err != nil {
			return 0, err
		}
		if amount < 0 {
			amount = -amount
		}
		return amount, nil
	}

	return 0, nil
}

// Common date formats used by banks worldwide.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2-1-2006",
	"2/1/2006",
	"01-02-2006",
	"01/02/2006",
	"1/2/2006",
	"02-01-2006 15:04",
	"02/01/2006 15:04",
	"01/02/2006 15:04",
	"2006-01-02 15:04:05",
}


var portugueseMonths = map[string]time.Month{
	"janeiro":   time.January,
	"fevereiro": time.February,
	"marco":     time.March,
	"abril":     time.April,
	"maio":      time.May,
	"junho":     time.June,
	"julho":     time.July,
	"agosto":    time.August,
	"setembro":  time.September,
	"outubro":   time.October,
	"novembro":  time.November,
	"dezembro":  time.December,
}

var wordMonthPattern = regexp.MustCompile(`(?i)^(\d{1,2})\s+de\s+([a-zçã]+)\s+de\s+(\d{4})$`)

var twoDigitYearPattern = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2})$`)

// ParseFlexibleDate fails with ErrInvalidDate if no recognized form
// matches. Accepts ISO, Brazilian slash (with two-digit-year pivot at 70),
// hyphenated, and Portuguese word-month forms.
func ParseFlexibleDate(raw string, preferredFormat string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}

	if loc == nil {
		loc = time.UTC
	}

	if t, ok := parseWordMonthDate(raw, loc); ok {
		return t, nil
	}

	if t, ok := parseTwoDigitYearDate(raw, loc); ok {
		return t, nil
	}

	if preferredFormat != "" {
		goFormat := convertDateFormat(preferredFormat)
		if t, err := time.ParseInLocation(goFormat, raw, loc); err == nil {
			return t, nil
		}
	}

	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, raw, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidDate
}

// parseTwoDigitYearDate applies the §4.1 pivot: two-digit years below 70
// land in the 2000s, otherwise the 1900s.
func parseTwoDigitYearDate(raw string, loc *time.Location) (time.Time, bool) {
	m := twoDigitYearPattern.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(m[1])
	month, err2 := strconv.Atoi(m[2])
	yy, err3 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month > 12 {
		day, month = month, day
	}
	year := 1900 + yy
	if yy < 70 {
		year = 2000 + yy
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
}

func parseWordMonthDate(raw string, loc *time.Location) (time.Time, bool) {
	m := wordMonthPattern.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	monthName := stripDiacritics(strings.ToLower(m[2]))
	month, ok := portugueseMonths[monthName]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc), true
}

// convertDateFormat converts user-friendly format strings to Go's
// reference-date format, e.g. "DD-MM-YYYY" -> "02-01-2006".
func convertDateFormat(format string) string {
	// NewReplacer tries patterns in argument order, so "YYYY" wins over "YY".
	replacer := strings.NewReplacer(
		"YYYY", "2006",
		"YY", "06",
		"MM", "01",
		"DD", "02",
		"HH", "15",
		"mm", "04",
		"ss", "05",
	)
	return replacer.Replace(format)
}

// DetectDateFormat attempts to guess the date format from sample data.
func DetectDateFormat(samples []string) string {
	if len(samples) == 0 {
		return "DD-MM-YYYY"
	}

	sample := strings.TrimSpace(samples[0])

	ddmmyyyyPattern := regexp.MustCompile(`^\d{1,2}[-/]\d{1,2}[-/]\d{4}$`)
	isoPattern := regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}$`)

	if isoPattern.MatchString(sample) {
		if strings.Contains(sample, "/") {
			return "YYYY/MM/DD"
		}
		return "YYYY-MM-DD"
	}

	if ddmmyyyyPattern.MatchString(sample) {
		parts := strings.FieldsFunc(sample, func(r rune) bool {
			return r == '-' || r == '/'
		})
		if len(parts) >= 2 {
			day, _ := strconv.Atoi(parts[0])
			if day > 12 {
				if strings.Contains(sample, "/") {
					return "DD/MM/YYYY"
				}
				return "DD-MM-YYYY"
			}
		}
		if strings.Contains(sample, "/") {
			return "DD/MM/YYYY"
		}
		return "DD-MM-YYYY"
	}

	return "DD-MM-YYYY"
}

// CleanDescription normalizes merchant/description text: trims and
// collapses whitespace, without touching case or diacritics (those are
// reserved for NormalizeForMatch).
func CleanDescription(raw string) string {
	result := strings.TrimSpace(raw)
	spacePattern := regexp.MustCompile(`\s+`)
	return spacePattern.ReplaceAllString(result, " ")
}

var diacriticReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
	"Á", "A", "À", "A", "Â", "A", "Ã", "A", "Ä", "A",
	"É", "E", "È", "E", "Ê", "E", "Ë", "E",
	"Í", "I", "Ì", "I", "Î", "I", "Ï", "I",
	"Ó", "O", "Ò", "O", "Ô", "O", "Õ", "O", "Ö", "O",
	"Ú", "U", "Ù", "U", "Û", "U", "Ü", "U",
	"Ç", "C", "Ñ", "N",
)

// stripDiacritics replaces accented Latin letters with their plain form.
func stripDiacritics(s string) string {
	return diacriticReplacer.Replace(s)
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeForMatch produces the uppercase, diacritic-stripped,
// whitespace-collapsed form used for rule/dedup matching only — never for
// display.
func NormalizeForMatch(s string) string {
	folded := stripDiacritics(s)
	folded = strings.ToUpper(folded)
	folded = whitespacePattern.ReplaceAllString(strings.TrimSpace(folded), " ")
	return folded
}

var merchantNoiseTokens = []string{
	"COMPRA NO DEBITO", "COMPRA NO CREDITO", "PIX ENVIADO", "PIX RECEBIDO",
	"PAGAMENTO", "COMPRA", "TRANSACAO",
}

var merchantNumericSuffix = regexp.MustCompile(`\s*[-#]?\s*\d{3,}$`)

// BuildMerchantKey derives a stable short key from counterparty/description
// text, suitable for reuse of rule patterns across similar vendors.
// "transacao" is the null sentinel for "no usable merchant".
func BuildMerchantKey(text string) string {
	normalized := NormalizeForMatch(text)
	for _, noise := range merchantNoiseTokens {
		normalized = strings.ReplaceAll(normalized, noise, "")
	}
	normalized = merchantNumericSuffix.ReplaceAllString(normalized, "")
	normalized = whitespacePattern.ReplaceAllString(strings.TrimSpace(normalized), " ")
	if normalized == "" {
		return "transacao"
	}
	return normalized
}

// FixMojibake repairs text whose bytes were originally latin-1/cp1252 but
// were decoded as UTF-8, the most common corruption seen in bank-export
// files. When s carries a replacement character or a known mojibake marker,
// it re-encodes s as cp1252 and keeps that result if it is valid UTF-8;
// otherwise s is returned unchanged.
func FixMojibake(s string) string {
	if !strings.ContainsRune(s, '�') && !hasMojibakeMarkers(s) {
		return s
	}

	repaired, ok := reencodeAsLatin1(s)
	if !ok {
		return s
	}
	return repaired
}

// hasMojibakeMarkers detects the classic UTF-8-bytes-shown-as-cp1252
// artifact sequences ("Ã©", "Ã§", "Â ", …) without requiring an outright
// U+FFFD to already be present.
func hasMojibakeMarkers(s string) bool {
	markers := []string{"Ã©", "Ã¡", "Ã£", "Ã§", "Ãª", "Ã³", "Â", "â€"}
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// reencodeAsLatin1 treats s's bytes as if they had been windows-1252
// interpreted as UTF-8: encode back to cp1252 bytes, then decode those
// bytes as UTF-8.
func reencodeAsLatin1(s string) (string, bool) {
	encoder := charmap.Windows1252.NewEncoder()
	asBytes, err := encoder.String(s)
	if err != nil {
		return "", false
	}
	if !isValidUTF8(asBytes) {
		return "", false
	}
	return asBytes, true
}

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}

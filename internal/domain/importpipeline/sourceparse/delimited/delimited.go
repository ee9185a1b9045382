// Package delimited implements the delimited-text (CSV/TSV) Source Parser
// variant: separator/header/encoding sniffing, a column mapping suggester
// with a confidence rating, and sequential row parsing.
package delimited

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
	"github.com/finledger/pipeline/internal/domain/importpipeline/textnorm"
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// Multi-language header keywords used to locate the header row among
// leading metadata lines.
var headerKeywords = []string{
	"data mov", "data mov.", "descrição", "descricao", "débito", "debito", "crédito", "credito",
	"data valor", "saldo", "categoria",
	"date", "description", "amount", "debit", "credit", "balance", "category", "merchant",
	"fecha", "descripción", "descripcion", "importe", "cargo", "abono",
}

// Parser implements sourceparse.Parser for delimited text files.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) Parse(_ context.Context, data []byte, opts sourceparse.Options) (*sourceparse.Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	decoded, encoding := normalizeEncoding(data)

	delimiter, skipLines, err := findHeaderRow(decoded)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(decoded), "\n")
	headerLine := lines[skipLines]
	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header row: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	sampleRows := sampleDataRows(decoded, delimiter, skipLines+1, 15)

	mapping := opts.Mapping
	suggested := suggestColumns(headers)
	confidence, missing := mappingConfidence(suggested)

	if mapping == nil {
		mapping = suggested
		applyFormatDefaults(sampleRows, delimiter, mapping)
	}

	result := &sourceparse.Result{
		Columns:           headers,
		DetectedEncoding:  encoding,
		SuggestedMapping:  suggested,
		MappingConfidence: confidence,
		MissingRequired:   missing,
		SampleRows:        sampleRows,
		Metadata: map[string]string{
			"fingerprint": fingerprint(headers),
		},
	}

	if len(missing) > 0 {
		// caller must supply a mapping; return diagnostics only.
		return result, nil
	}

	rows, parseErrs := parseRowsSequential(decoded, delimiter, skipLines, *mapping)
	if len(parseErrs) > 0 {
		result.Metadata["rowErrors"] = strings.Join(parseErrs, "; ")
	}
	result.Rows = rows

	return result, nil
}

// normalizeEncoding sniffs a UTF-8 BOM, then falls back to cp1252/latin1
// decoding when the byte stream is not valid UTF-8.
func normalizeEncoding(data []byte) ([]byte, string) {
	data = stripUTF8BOM(data)
	if utf8.Valid(data) {
		return data, "utf-8"
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data, "unknown"
	}
	return decoded, "windows-1252"
}

func stripUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// findHeaderRow takes the first of the first 21 lines that contains a
// recognized header keyword and at least three occurrences of one
// delimiter, trying ';', tab, ',' and '|' in that order; the first
// delimiter reaching three wins. Separator counts are not compared across
// lines or across delimiters (no majority vote).
func findHeaderRow(data []byte) (rune, int, error) {
	lines := strings.Split(string(data), "\n")
	delimiters := []rune{';', '\t', ',', '|'}

	for i, line := range lines {
		if i > 20 {
			break
		}
		lineLower := strings.ToLower(line)
		hasKeyword := false
		for _, kw := range headerKeywords {
			if strings.Contains(lineLower, kw) {
				hasKeyword = true
				break
			}
		}
		if !hasKeyword {
			continue
		}
		for _, d := range delimiters {
			if strings.Count(line, string(d)) >= 3 {
				return d, i, nil
			}
		}
	}

	return 0, 0, ErrNoHeadersFound
}

func fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}
	joined := strings.Join(normalized, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

func sampleDataRows(data []byte, delimiter rune, startLine, maxRows int) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	lineNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if lineNum >= startLine {
			rows = append(rows, record)
			if len(rows) >= maxRows {
				break
			}
		}
		lineNum++
	}
	return rows
}

// suggestColumns infers which header column is date/description/amount/
// debit/credit/category by normalized header tokens with synonyms.
func suggestColumns(headers []string) *sourceparse.ColumnMapping {
	m := &sourceparse.ColumnMapping{DateCol: -1, DescCol: -1, AmountCol: -1, DebitCol: -1, CreditCol: -1, CategoryCol: -1}

	for i, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))

		if m.DateCol == -1 && (strings.Contains(h, "data mov") || strings.Contains(h, "date") || strings.Contains(h, "fecha") || h == "data") {
			m.DateCol = i
		}
		if m.DescCol == -1 && (strings.Contains(h, "descri") || strings.Contains(h, "merchant") || strings.Contains(h, "description") || h == "nome" || h == "name") {
			m.DescCol = i
		}
		if m.DebitCol == -1 && (strings.Contains(h, "débito") || strings.Contains(h, "debito") || strings.Contains(h, "debit") || strings.Contains(h, "cargo")) {
			m.DebitCol = i
		}
		if m.CreditCol == -1 && (strings.Contains(h, "crédito") || strings.Contains(h, "credito") || strings.Contains(h, "credit") || strings.Contains(h, "abono")) {
			m.CreditCol = i
		}
		if m.AmountCol == -1 && (h == "amount" || h == "valor" || h == "importe" || h == "montante") {
			m.AmountCol = i
		}
		if m.CategoryCol == -1 && (strings.Contains(h, "categ") || strings.Contains(h, "category") || strings.Contains(h, "tipo") || strings.Contains(h, "type")) {
			m.CategoryCol = i
		}
	}

	m.IsDoubleEntry = m.DebitCol != -1 && m.CreditCol != -1
	return m
}

// mappingConfidence rates the suggested mapping and lists required fields
// that could not be assigned.
func mappingConfidence(m *sourceparse.ColumnMapping) (sourceparse.MappingConfidence, []string) {
	var missing []string
	if m.DateCol == -1 {
		missing = append(missing, "date")
	}
	if m.DescCol == -1 {
		missing = append(missing, "description")
	}
	hasAmount := m.AmountCol != -1 || m.IsDoubleEntry
	if !hasAmount {
		missing = append(missing, "amount")
	}

	if len(missing) > 0 {
		return sourceparse.ConfidenceBaixa, missing
	}
	if m.CategoryCol == -1 {
		return sourceparse.ConfidenceMedia, nil
	}
	return sourceparse.ConfidenceAlta, nil
}

func applyFormatDefaults(sampleRows [][]string, delimiter rune, mapping *sourceparse.ColumnMapping) {
	if mapping.DateFormat == "" {
		samples := collectColumn(sampleRows, mapping.DateCol)
		if len(samples) > 0 {
			mapping.DateFormat = textnorm.DetectDateFormat(samples)
		}
	}
	mapping.Delimiter = delimiter

	if european, ok := detectEuropeanFormat(sampleRows, *mapping); ok {
		mapping.IsEuropeanFormat = european
	} else {
		mapping.IsEuropeanFormat = delimiter == ';'
	}
}

func collectColumn(rows [][]string, col int) []string {
	if col < 0 {
		return nil
	}
	var out []string
	for _, r := range rows {
		if col < len(r) && strings.TrimSpace(r[col]) != "" {
			out = append(out, r[col])
		}
	}
	return out
}

func detectEuropeanFormat(rows [][]string, mapping sourceparse.ColumnMapping) (bool, bool) {
	var samples []string
	if mapping.IsDoubleEntry {
		samples = append(samples, collectColumn(rows, mapping.DebitCol)...)
		samples = append(samples, collectColumn(rows, mapping.CreditCol)...)
	} else {
		samples = collectColumn(rows, mapping.AmountCol)
	}
	if len(samples) == 0 {
		return false, false
	}

	europeanVotes, americanVotes := 0, 0
	for _, s := range samples {
		lastComma := strings.LastIndex(s, ",")
		lastDot := strings.LastIndex(s, ".")
		switch {
		case lastComma == -1 && lastDot == -1:
			continue
		case lastComma > lastDot:
			europeanVotes++
		default:
			americanVotes++
		}
	}
	if europeanVotes == 0 && americanVotes == 0 {
		return false, false
	}
	return europeanVotes >= americanVotes, true
}

// parseRowsSequential walks the CSV sequentially (§5: parsing of one file
// must not fan out across workers) so row order, and therefore commitIndex
// stability and dedup ordering, is preserved.
func parseRowsSequential(data []byte, delimiter rune, skipLines int, mapping sourceparse.ColumnMapping) ([]sourceparse.ParsedRow, []string) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var errs []string
	for i := 0; i <= skipLines; i++ {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return nil, []string{"file has no data rows"}
			}
			errs = append(errs, fmt.Sprintf("line %d: %v", i, err))
		}
	}

	var rows []sourceparse.ParsedRow
	lineNum := skipLines + 2
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", lineNum, err))
			lineNum++
			continue
		}

		row, err := parseRow(record, mapping)
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", lineNum, err))
			lineNum++
			continue
		}
		rows = append(rows, *row)
		lineNum++
	}

	return rows, errs
}

func parseRow(record []string, mapping sourceparse.ColumnMapping) (*sourceparse.ParsedRow, error) {
	maxCol := len(record) - 1
	if mapping.DateCol > maxCol || mapping.DescCol > maxCol {
		return nil, fmt.Errorf("column index out of bounds")
	}

	date, err := textnorm.ParseFlexibleDate(record[mapping.DateCol], mapping.DateFormat, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", record[mapping.DateCol], err)
	}

	description := textnorm.CleanDescription(record[mapping.DescCol])
	if description == "" {
		return nil, fmt.Errorf("empty description")
	}

	var amountCents int64
	if mapping.IsDoubleEntry {
		if mapping.DebitCol > maxCol || mapping.CreditCol > maxCol {
			return nil, fmt.Errorf("debit/credit column index out of bounds")
		}
		var debitStr, creditStr string
		if mapping.DebitCol >= 0 && mapping.DebitCol < len(record) {
			debitStr = record[mapping.DebitCol]
		}
		if mapping.CreditCol >= 0 && mapping.CreditCol < len(record) {
			creditStr = record[mapping.CreditCol]
		}
		amountCents, err = textnorm.NormalizeDebitCredit(debitStr, creditStr, mapping.IsEuropeanFormat)
	} else {
		if mapping.AmountCol > maxCol {
			return nil, fmt.Errorf("amount column index out of bounds")
		}
		amountCents, err = textnorm.ParseAmount(record[mapping.AmountCol], mapping.IsEuropeanFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	raw := map[string]string{}
	for i, v := range record {
		raw[fmt.Sprintf("col%d", i)] = v
	}

	return &sourceparse.ParsedRow{
		Date:        date.Format("2006-01-02"),
		Description: description,
		AmountCents: amountCents,
		Raw:         raw,
	}, nil
}

// Package document implements the portable-document Source Parser variant:
// text extraction plus per-issuer-profile line-rule extraction.
package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
)

// DocumentTextExtractor is the capability interface substituting for the
// source's dynamic-import document-extraction backends (§9 design note).
// Two implementations exist: a primary extractor backed by
// github.com/ledongthuc/pdf, and a literal-string fallback used only after
// the primary fails with a non-password error.
type DocumentTextExtractor interface {
	ExtractText(ctx context.Context, data []byte, password string) (string, error)
}

// primaryExtractor reads embedded text content page by page via
// github.com/ledongthuc/pdf.
type primaryExtractor struct{}

func (primaryExtractor) ExtractText(_ context.Context, data []byte, password string) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if isPasswordError(err) {
			if password == "" {
				return "", sourceparse.ErrPasswordRequired
			}
			return "", sourceparse.ErrPasswordInvalid
		}
		return "", fmt.Errorf("%w: %v", sourceparse.ErrParserUnavailable, err)
	}

	var sb strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n-- page break --\n")
	}

	if sb.Len() == 0 {
		return "", sourceparse.ErrNoTransactionsFound
	}

	return sb.String(), nil
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypted")
}

// fallbackExtractor is a minimal literal-string scanner used for simple
// documents when the primary extractor fails for a reason other than a
// password: it looks for PDF text-showing operators (Tj / TJ) between
// BT...ET blocks and concatenates their literal string operands.
type fallbackExtractor struct{}

var _ DocumentTextExtractor = fallbackExtractor{}

func (fallbackExtractor) ExtractText(_ context.Context, data []byte, _ string) (string, error) {
	var sb strings.Builder
	inText := false
	scanner := bytes.NewReader(data)
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := scanner.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", sourceparse.ErrParserUnavailable, err)
		}
	}

	content := string(buf)
	idx := 0
	for idx < len(content) {
		btIdx := strings.Index(content[idx:], "BT")
		if btIdx == -1 {
			break
		}
		start := idx + btIdx
		etIdx := strings.Index(content[start:], "ET")
		if etIdx == -1 {
			break
		}
		block := content[start : start+etIdx]
		extractLiteralStrings(block, &sb)
		sb.WriteString("\n")
		idx = start + etIdx + 2
		inText = true
	}

	if !inText || sb.Len() == 0 {
		return "", sourceparse.ErrNoTransactionsFound
	}
	return sb.String(), nil
}

// extractLiteralStrings pulls the "(...)" literal-string operands out of a
// BT...ET text block and appends their content to sb.
func extractLiteralStrings(block string, sb *strings.Builder) {
	depth := 0
	var cur strings.Builder
	for i := 0; i < len(block); i++ {
		c := block[i]
		switch c {
		case '(':
			if depth == 0 {
				cur.Reset()
			} else {
				cur.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				sb.WriteString(cur.String())
				sb.WriteByte(' ')
			} else if depth > 0 {
				cur.WriteByte(c)
			}
		default:
			if depth > 0 {
				cur.WriteByte(c)
			}
		}
	}
}

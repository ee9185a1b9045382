// Package markup implements the markup-exchange Source Parser variant:
// extraction of transaction blocks from an SGML-like financial exchange
// container via the ofxgo library.
package markup

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
)

// Parser implements sourceparse.Parser for OFX/QFX-style exports.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

var severityFix = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
var unclosedTagFix = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)

// preprocess repairs the common formatting defects seen in real-world
// exports: mixed-case SEVERITY values and SGML tags missing their closing
// angle bracket.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityFix.ReplaceAllStringFunc(content, strings.ToUpper)
	content = unclosedTagFix.ReplaceAllString(content, "$1>")
	return content
}

func (p *Parser) Parse(_ context.Context, data []byte, _ sourceparse.Options) (*sourceparse.Result, error) {
	processed := preprocess(string(data))

	resp, err := ofxgo.ParseResponse(strings.NewReader(processed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sourceparse.ErrParserUnavailable, err)
	}

	var rows []sourceparse.ParsedRow

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		accountHint := string(stmt.BankAcctFrom.AcctID)
		for _, tx := range stmt.BankTranList.Transactions {
			rows = append(rows, convertTransaction(tx, accountHint))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		accountHint := string(stmt.CCAcctFrom.AcctID)
		for _, tx := range stmt.BankTranList.Transactions {
			rows = append(rows, convertTransaction(tx, accountHint))
		}
	}

	if len(rows) == 0 {
		return nil, sourceparse.ErrNoTransactionsFound
	}

	return &sourceparse.Result{
		Rows:              rows,
		DetectedEncoding:  "utf-8",
		MappingConfidence: sourceparse.ConfidenceAlta,
	}, nil
}

func convertTransaction(tx ofxgo.Transaction, accountHint string) sourceparse.ParsedRow {
	amount, _ := tx.TrnAmt.Float64()
	cents := int64(amount * 100)

	description := extractDescription(tx)

	return sourceparse.ParsedRow{
		Date:        tx.DtPosted.Time.Format("2006-01-02"),
		Description: description,
		AmountCents: cents,
		ExternalID:  string(tx.FiTID),
		AccountHint: accountHint,
		Raw: map[string]string{
			"trnType": fmt.Sprintf("%v", tx.TrnType),
			"checkNum": string(tx.CheckNum),
		},
	}
}

func extractDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	name := strings.TrimSpace(string(tx.Name))
	if name == "" && tx.Memo != "" {
		name = strings.TrimSpace(string(tx.Memo))
	}
	return name
}


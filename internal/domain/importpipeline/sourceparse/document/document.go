package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
)

// extractionTimeout bounds the primary/fallback text-extraction attempt
// for a single portable document.
const extractionTimeout = 12 * time.Second

// Parser implements sourceparse.Parser for portable documents: it extracts
// embedded text (primary path, falling back to a literal-string scanner
// for simple documents), classifies the result against the closed set of
// issuer profiles, and dispatches to that profile's line-rule extractor.
type Parser struct {
	primary  DocumentTextExtractor
	fallback DocumentTextExtractor
}

func NewParser() *Parser {
	return &Parser{
		primary:  primaryExtractor{},
		fallback: fallbackExtractor{},
	}
}

func (p *Parser) Parse(ctx context.Context, data []byte, opts sourceparse.Options) (*sourceparse.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	text, err := p.extractText(ctx, data, opts.PDFPassword)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %v", sourceparse.ErrParserUnavailable, ctxErr)
	}
	if err != nil {
		return nil, err
	}

	extractor, ok := classify(text)
	if !ok {
		return nil, sourceparse.ErrUnsupportedIssuerProfile
	}

	rows, err := extractor.Extract(text)
	if err != nil {
		return nil, err
	}

	return &sourceparse.Result{
		Rows:              rows,
		DetectedEncoding:  "utf-8",
		DocumentType:      extractor.DocumentType(),
		IssuerProfile:     string(extractor.Profile()),
		MappingConfidence: sourceparse.ConfidenceAlta,
	}, nil
}

// extractText runs the primary extractor, falling back to the
// literal-string scanner only when the primary failure is not
// password-related (a password error is definitive and must reach the
// caller so it can be re-tried with credentials, not papered over).
func (p *Parser) extractText(ctx context.Context, data []byte, password string) (string, error) {
	text, err := p.primary.ExtractText(ctx, data, password)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, sourceparse.ErrPasswordRequired) || errors.Is(err, sourceparse.ErrPasswordInvalid) {
		return "", err
	}

	return p.fallback.ExtractText(ctx, data, password)
}

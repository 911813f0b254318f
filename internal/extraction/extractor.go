// Package extraction turns raw receipts, statements and notifications into
// candidate events. The model behind it is a black box; everything it
// returns is validated here before the reconciliation core sees it.
package extraction

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/store"
)

// Input is the raw material handed to an extractor. At least one of Text,
// Image or ImageURI must be set.
type Input struct {
	Text string `json:"text,omitempty"`
	// Image holds inline bytes; ImageURI points at a gs:// object instead.
	Image         []byte `json:"-"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
	ImageURI      string `json:"image_uri,omitempty"`
}

// Empty reports whether there is nothing to extract from.
func (in Input) Empty() bool {
	return strings.TrimSpace(in.Text) == "" && len(in.Image) == 0 && in.ImageURI == ""
}

// Context describes the ledger the candidates are extracted for.
type Context struct {
	BaseCurrency        string            `json:"base_currency"`
	Categories          []domain.Category `json:"categories"`
	Accounts            []domain.Account  `json:"accounts"`
	KnownChequeKeywords []string          `json:"known_cheque_keywords"`
}

// Extractor proposes candidate events from raw input.
type Extractor interface {
	Extract(ctx context.Context, in Input, ec Context) ([]domain.CandidateEvent, error)
}

// StaticExtractor replays pre-extracted JSON. Text is treated as the model
// output when Data is empty, so a CLI can feed files straight through.
type StaticExtractor struct {
	Data []byte
}

// NewStaticExtractorFromFile loads the JSON to replay from path.
func NewStaticExtractorFromFile(path string) (*StaticExtractor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("NewStaticExtractorFromFile: %w", err)
	}
	return &StaticExtractor{Data: data}, nil
}

// Extract implements Extractor.
func (s *StaticExtractor) Extract(ctx context.Context, in Input, ec Context) ([]domain.CandidateEvent, error) {
	raw := s.Data
	if len(raw) == 0 {
		if strings.TrimSpace(in.Text) == "" {
			return nil, domain.Invalid("input", "text is required")
		}
		raw = []byte(in.Text)
	}
	return Finish(raw, ec)
}

// Finish decodes model output and applies the ledger context: currencies
// default to the base currency, categories are normalized and cheque
// keywords mark cheque payments.
func Finish(raw []byte, ec Context) ([]domain.CandidateEvent, error) {
	candidates, err := DecodeCandidates([]byte(cleanModelJSON(string(raw))))
	if err != nil {
		return nil, err
	}
	validator := NewCategoryValidator(ec.Categories)
	for i := range candidates {
		c := &candidates[i]
		if c.Currency == "" {
			c.Currency = strings.ToUpper(ec.BaseCurrency)
		}
		c.Category = validator.Normalize(c.Category)
		markCheque(c, ec.KnownChequeKeywords)
	}
	return candidates, nil
}

var (
	_ Extractor = (*StaticExtractor)(nil)
	_ Extractor = (*GeminiExtractor)(nil)
)

// LoadContext assembles the extraction context from the ledger.
func LoadContext(ctx context.Context, l *store.Ledger, baseCurrency string, keywords []string) (Context, error) {
	accounts, err := l.Accounts(ctx)
	if err != nil {
		return Context{}, fmt.Errorf("LoadContext: accounts: %w", err)
	}
	categories, err := l.Categories(ctx)
	if err != nil {
		return Context{}, fmt.Errorf("LoadContext: categories: %w", err)
	}
	return Context{
		BaseCurrency:        strings.ToUpper(baseCurrency),
		Categories:          categories,
		Accounts:            accounts,
		KnownChequeKeywords: keywords,
	}, nil
}

package publisher

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"metapub/internal/textutil"
)

// DefaultSecondarySeparator joins multiple secondary identifiers.
const DefaultSecondarySeparator = "; "

// ParsedRecord is the decoded form of one raw publisher cell.
type ParsedRecord struct {
	RowID     int64
	Literal   string
	Primary   ID
	Secondary ID
}

// Parser decodes raw cells. It is not safe for concurrent use.
type Parser struct {
	separator  string
	normalizer *textutil.Normalizer
}

// NewParser builds a Parser that joins secondary identifiers with separator.
func NewParser(separator string) *Parser {
	if separator == "" {
		separator = DefaultSecondarySeparator
	}
	return &Parser{separator: separator, normalizer: textutil.NewNormalizer()}
}

// Parse decodes raw for the row rowID. Rows without a bracket group still
// produce a record, with sentinel identifiers. An error means the row should
// be dropped.
func (p *Parser) Parse(rowID int64, raw string) (rec ParsedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = ParsedRecord{}
			err = fmt.Errorf("decode row %d: panic: %v", rowID, r)
		}
	}()

	if !utf8.ValidString(raw) {
		return ParsedRecord{}, fmt.Errorf("decode row %d: %w", rowID, textutil.ErrInvalidUTF8)
	}

	segment := FirstSegment(strings.ToLower(strings.TrimSpace(raw)))
	rec = ParsedRecord{
		RowID:     rowID,
		Primary:   Missing(rowID),
		Secondary: Missing(rowID),
	}

	groups := FindGroups(segment)
	literal := segment
	if len(groups) > 0 {
		literal = strings.TrimFunc(StripGroups(segment, groups), isLiteralEdge)

		tokens := SplitTokens(groups[0].Inner)
		if len(tokens) > 0 {
			rec.Primary = Value(tokens[0].Value, rowID)
		}
		if len(tokens) > 1 {
			rec.Secondary = Value(p.joinValues(tokens[1:]), rowID)
		}
	}

	rec.Literal, err = p.normalizer.Normalize(literal)
	if err != nil {
		return ParsedRecord{}, fmt.Errorf("decode row %d: %w", rowID, err)
	}
	return rec, nil
}

func isLiteralEdge(r rune) bool {
	return r == '[' || r == ']' || unicode.IsSpace(r)
}

func (p *Parser) joinValues(tokens []Token) string {
	values := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Value != "" {
			values = append(values, tok.Value)
		}
	}
	return strings.Join(values, p.separator)
}

package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/cbwinslow/CloudCommerce/internal/llm"
	"github.com/cbwinslow/CloudCommerce/internal/market"
)

// ErrNotSerializable reports draft text that cannot be written as CSV.
var ErrNotSerializable = errors.New("draft text not serializable")

// header is the fixed column order of the export.
var header = []string{"Platform", "Title", "Description", "Price", "Condition"}

// CSV serializes the marketplace→draft mapping. Rows follow the declared
// marketplace order, never insertion order, so repeated export of identical
// input is byte-identical.
func CSV(drafts map[market.Marketplace]llm.ListingDraft) ([]byte, error) {
	order := make([]market.Marketplace, 0, len(drafts))
	for m := range drafts {
		order = append(order, m)
	}
	market.SortCanonical(order)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}

	for _, m := range order {
		draft := drafts[m]
		row := []string{
			string(m),
			draft.Title,
			draft.Description,
			draft.Price.StringFixed(2),
			draft.Condition,
		}
		for _, field := range row {
			if !utf8.ValidString(field) {
				return nil, fmt.Errorf("%w: invalid UTF-8 in %s draft", ErrNotSerializable, m)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	return buf.Bytes(), nil
}

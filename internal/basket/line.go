package basket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/healthplusinnovation/storefront/internal/catalog"
)

// MaxLineQuantity caps a single line. Additions past the cap saturate at it.
const MaxLineQuantity = 999

// Line is one product's entry in the basket. Quantity is always between 1 and MaxLineQuantity.
type Line struct {
	catalog.Product
	Quantity int `json:"quantity"`
}

// Subtotal returns price × quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Savings returns (mrp - price) × quantity, clamped at zero when the price exceeds the mrp.
func (l Line) Savings() decimal.Decimal {
	diff := l.MRP.Sub(l.Price)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// addQuantity sums two positive quantities, saturating at MaxLineQuantity.
func addQuantity(current, delta int) int {
	if delta >= MaxLineQuantity-current {
		return MaxLineQuantity
	}
	return current + delta
}

func clampQuantity(quantity int) int {
	if quantity > MaxLineQuantity {
		return MaxLineQuantity
	}
	return quantity
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

// encodeSnapshot serializes lines as a JSON array; an empty basket encodes as [].
func encodeSnapshot(lines []Line) ([]byte, error) {
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(lines)
}

// decodeSnapshot parses a persisted snapshot. Anything other than a JSON array is rejected.
// Elements that do not decode as a line, lack an id or carry a non-positive quantity are
// dropped. Repeated ids are merged and quantities are capped at MaxLineQuantity. The second
// return value reports whether anything had to be dropped, merged or capped.
func decodeSnapshot(data []byte) ([]Line, bool, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false, fmt.Errorf("snapshot is not an array")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}

	lines := make([]Line, 0, len(raw))
	index := make(map[string]int, len(raw))
	repaired := false
	for _, element := range raw {
		var line Line
		if err := json.Unmarshal(element, &line); err != nil {
			repaired = true
			continue
		}
		if strings.TrimSpace(line.ID) == "" || line.Quantity <= 0 {
			repaired = true
			continue
		}
		if line.Quantity > MaxLineQuantity {
			line.Quantity = MaxLineQuantity
			repaired = true
		}
		if i, ok := index[line.ID]; ok {
			lines[i].Quantity = addQuantity(lines[i].Quantity, line.Quantity)
			repaired = true
			continue
		}
		index[line.ID] = len(lines)
		lines = append(lines, line)
	}
	return lines, repaired, nil
}

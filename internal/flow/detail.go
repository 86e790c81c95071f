package flow

import "github.com/venturus/cdm-teller/internal/device"

// DetailLine is one merged denomination line shown on the counting
// screen and persisted with the deposit.
type DetailLine struct {
	DenominationID int     `json:"denomination_id"`
	Description    string  `json:"description"`
	Value          float64 `json:"value"`
	Quantity       int     `json:"quantity"`
	Subtotal       float64 `json:"subtotal"`
}

// MergeDetail joins counted rows onto the machine's denomination
// catalog. Counted rows are matched by denomination id; catalog entries
// the counter never saw default to quantity zero and are dropped, as are
// counted rows for denominations missing from the catalog. The returned
// total is the sum of value times quantity over the kept lines.
func MergeDetail(catalog []device.Denomination, counted []device.CountedRow) ([]DetailLine, float64) {
	quantities := make(map[int]int, len(counted))
	for _, row := range counted {
		quantities[row.DenominationID] += row.Quantity
	}

	lines := make([]DetailLine, 0, len(catalog))
	total := 0.0
	for _, denom := range catalog {
		qty := quantities[denom.DenominationID]
		if qty <= 0 {
			continue
		}
		line := DetailLine{
			DenominationID: denom.DenominationID,
			Description:    denom.Description,
			Value:          float64(denom.Value),
			Quantity:       qty,
			Subtotal:       float64(denom.Value) * float64(qty),
		}
		lines = append(lines, line)
		total += line.Subtotal
	}

	return lines, total
}

package ledger

import (
	"bytes"
	"encoding/json"

	"despesas/internal/core"
)

// EncodeSnapshot serializes the full list as a JSON array.
func EncodeSnapshot(records []core.Expense) ([]byte, error) {
	if records == nil {
		records = []core.Expense{}
	}
	return json.Marshal(records)
}

// DecodeSnapshot parses a snapshot written by EncodeSnapshot. Values written
// as plain JSON numbers are accepted as well.
func DecodeSnapshot(raw []byte) ([]core.Expense, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []core.Expense{}, nil
	}
	var records []core.Expense
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

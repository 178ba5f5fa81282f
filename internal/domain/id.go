package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeID accepts both JSON strings and JSON numbers; browser clients send
// database ids as numbers while Go clients send strings.
func decodeID(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("id must be a string or a number: %w", err)
	}
	return n.String(), nil
}

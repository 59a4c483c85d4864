package service

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func compactJSON(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, fmt.Errorf("compacting payload: %w", err)
	}
	return buf.Bytes(), nil
}

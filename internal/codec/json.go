package codec

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes v as strict JSON. encoding/json refuses NaN and ±Inf
// float values (json.UnsupportedValueError); every "missing" value in our
// pipeline is normalized to the empty string before it reaches this point,
// so an error here means a data bug upstream and must fail the request
// rather than leak a malformed document to the client.
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("response not encodable as strict JSON: %w", err)
	}
	return b, nil
}

// Unmarshal is the counterpart used by the Fiber JSON config.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

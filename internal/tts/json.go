package tts

import (
	"encoding/json"
	"fmt"
)

// parseJSON parses JSON data into the target, classifying failures as
// malformed payloads.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("%w: failed to unmarshal JSON: %w", ErrMalformedPayload, err)
	}

	return nil
}

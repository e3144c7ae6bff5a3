package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/vtatransit-data/internal/feed/extract"
)

// GetPayload is one get-queue item: a reference to a raw extract file
// awaiting parse+map.
type GetPayload struct {
	Key   string `json:"key"`
	Path  string `json:"info"`
	Epoch string `json:"version"`
}

// SavePayload is one save-queue item: a batch of mapped records bound
// for persistence.
type SavePayload struct {
	Key     string        `json:"key"`
	Records []extract.Row `json:"info"`
	Epoch   string        `json:"version"`
}

func (p GetPayload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling get payload: %w", err)
	}
	return b, nil
}

func (p SavePayload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling save payload: %w", err)
	}
	return b, nil
}

func UnmarshalGetPayload(b []byte) (GetPayload, error) {
	var p GetPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("unmarshaling get payload: %w", err)
	}
	return p, nil
}

func UnmarshalSavePayload(b []byte) (SavePayload, error) {
	var p SavePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("unmarshaling save payload: %w", err)
	}
	return p, nil
}

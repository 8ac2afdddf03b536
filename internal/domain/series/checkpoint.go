package series

import (
	"encoding/json"
	"fmt"
	"time"
)

// Checkpoint is the per-dataset metadata record. LastChecked is the time of
// the last refresh attempt, which is deliberately distinct from the recency
// of the data itself: a check that found nothing new still moves it forward.
type Checkpoint struct {
	LastChecked time.Time `json:"last_checked"`
}

// EncodeCheckpoint serializes a checkpoint for the metadata artifact.
func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// DecodeCheckpoint parses a metadata artifact. A checkpoint that cannot be
// parsed is indistinguishable from a missing one; callers fall back to the
// zero time so the next cooldown check treats it as long expired.
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

package replay

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fieldshare/surplus/internal/apperrors"
)

// Checkpoint records the high-water mark of the last successful pass, so a
// cron-triggered replay can resume from where the previous run left off
// instead of re-scanning the whole window every time (spec §4.4).
type Checkpoint struct {
	LastProcessedTo time.Time `json:"last_processed_to"`
	UpdatedAt       time.Time `json:"updated_at"`
	Mode            string    `json:"mode"`
}

// CheckpointStore persists a Checkpoint to a single JSON file on disk.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Read returns nil, nil if no checkpoint file exists yet.
func (c *CheckpointStore) Read() (*Checkpoint, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "read checkpoint")
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "parse checkpoint")
	}
	return &cp, nil
}

func (c *CheckpointStore) Write(cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "marshal checkpoint")
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "write checkpoint")
	}
	return nil
}

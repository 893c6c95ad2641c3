package store

import "github.com/intercooperative/agoranet/pkg/models"

// GetRuntimeCursor reads the singleton runtime cursor row, returning the
// zero value if none has been persisted yet.
func GetRuntimeCursor() (models.RuntimeCursor, error) {
	if err := requireOpen(); err != nil {
		return models.RuntimeCursor{}, err
	}
	var c models.RuntimeCursor
	if _, err := getJSON(keyRuntimeCursor(), &c); err != nil {
		return models.RuntimeCursor{}, err
	}
	return c, nil
}

// SaveRuntimeCursor persists the runtime cursor. Called once per poll with
// the last event that projected successfully before the end of the batch or
// the first deferred event.
func SaveRuntimeCursor(c models.RuntimeCursor) error {
	if err := requireOpen(); err != nil {
		return err
	}
	return putJSON(keyRuntimeCursor(), c)
}

// ResetRuntimeCursor implements the Fatal recovery path: cursor corruption
// resets to zero so the consumer re-scans from the beginning.
func ResetRuntimeCursor() error {
	return SaveRuntimeCursor(models.RuntimeCursor{})
}

// GetFederationVector reads the last sequence accepted from origin nodeID.
func GetFederationVector(nodeID string) (uint64, error) {
	if err := requireOpen(); err != nil {
		return 0, err
	}
	var seq uint64
	if _, err := getJSON(keyFederationVector(nodeID), &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// SetFederationVector records the last sequence accepted from origin nodeID.
func SetFederationVector(nodeID string, seq uint64) error {
	if err := requireOpen(); err != nil {
		return err
	}
	return putJSON(keyFederationVector(nodeID), seq)
}

// FederationVectorSnapshot returns the full {node_id -> seq} vector, used to
// build a SyncRequest.
func FederationVectorSnapshot() (map[string]uint64, error) {
	if err := requireOpen(); err != nil {
		return nil, err
	}
	out := map[string]uint64{}
	prefix := []byte("federation:vector:")
	err := scanPrefix(db, prefix, func(k, v []byte) bool {
		nodeID := string(k[len(prefix):])
		var seq uint64
		if getJSONBytes(v, &seq) == nil {
			out[nodeID] = seq
		}
		return true
	})
	return out, err
}

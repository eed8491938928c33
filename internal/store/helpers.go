package store

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
)

// SortedUniqueIDs returns ids deduplicated and in ascending byte order. Every
// multi-account lock is taken in this order so concurrent settlements cannot
// deadlock on each other.
func SortedUniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func marshalEventPayload(payload interface{}) ([]byte, error) {
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}

func truncateReason(reason string) string {
	if len(reason) > 2000 {
		return reason[:2000]
	}
	return reason
}

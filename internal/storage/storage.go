package storage

import (
	"encoding/json"
	"fmt"
)

// Record is anything kept in a store. The id is the merge key.
type Record interface {
	GetID() int
}

// Merge replaces, for every update, the first existing record with the same id, or appends
// the update when no record matches. Records that are not touched keep their relative order.
// Merging the same updates twice yields the same result.
func Merge[T Record](existing, updates []T) []T {
	merged := make([]T, len(existing), len(existing)+len(updates))
	copy(merged, existing)

	for _, update := range updates {
		found := false

		for i := range merged {
			if merged[i].GetID() == update.GetID() {
				merged[i] = update
				found = true

				break
			}
		}

		if !found {
			merged = append(merged, update)
		}
	}

	return merged
}

// Without returns the records whose ids are not listed.
func Without[T Record](records []T, ids ...int) []T {
	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := make([]T, 0, len(records))

	for _, record := range records {
		if _, ok := drop[record.GetID()]; ok {
			continue
		}

		kept = append(kept, record)
	}

	return kept
}

// MaxID returns the largest id among records, or 0.
func MaxID[T Record](records []T) int {
	var maxID int

	for _, record := range records {
		if record.GetID() > maxID {
			maxID = record.GetID()
		}
	}

	return maxID
}

func EncodeLine[T Record](record T) ([]byte, error) {
	line, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record %v: %w", record.GetID(), err)
	}

	return line, nil
}

func DecodeLine[T Record](line []byte) (T, error) {
	var record T

	if err := json.Unmarshal(line, &record); err != nil {
		return record, fmt.Errorf("decode record: %w", err)
	}

	return record, nil
}

package domain

import (
	"context"
	"strings"
)

// PeoplePath is the collection holding person records.
const PeoplePath = "people"

// RecordStore is the push-based record store the forest is built from.
// Every snapshot sent on a subscription is a full, authoritative replacement
// of the collection; the first one reflects the state at subscription time.
type RecordStore interface {
	Subscribe(ctx context.Context, path string) (<-chan RawSnapshot, error)
	// Set writes a single record ("people/<id>") or field ("people/<id>/<field>").
	Set(ctx context.Context, path string, value any) error
	// Update applies every key of patch, each a path relative to path, as one
	// atomic write observed as a single snapshot.
	Update(ctx context.Context, path string, patch map[string]any) error
}

// RecordPath returns the store path of a person record.
func RecordPath(id string) string { return JoinPath(PeoplePath, id) }

// FieldPath returns the store path of one field of a person record.
func FieldPath(id, field string) string { return JoinPath(PeoplePath, id, field) }

// JoinPath joins path segments with "/".
func JoinPath(parts ...string) string {
	return strings.Join(SplitPath(strings.Join(parts, "/")), "/")
}

// SplitPath splits a store path into its non-empty segments.
func SplitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := raw[:0]
	for _, seg := range raw {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

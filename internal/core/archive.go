package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"familytree/internal/blob"
	"familytree/pkg/domain"
)

// ArchivePrefix is the key prefix under which people snapshots are stored.
const ArchivePrefix = "snapshots/people/"

const archiveContentType = "application/json"

// Archive writes the current people records to store as one JSON document
// and returns the stored blob. Keys sort by creation time.
func (s *Service) Archive(ctx context.Context, store blob.Store) (blob.Info, error) {
	if !s.Ready() {
		return blob.Info{}, ErrNotReady
	}
	ctx, span := s.tracer.Start(ctx, OpArchive)
	started := time.Now()

	info, err := s.archive(ctx, store)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, OpArchive, err == nil, elapsed)
	if err != nil {
		s.logger.Warn("archive failed", "error", err)
		return blob.Info{}, err
	}
	s.logger.Info("people archived", "key", info.Key, "bytes", info.Size, "driver", string(store.Driver()))
	return info, nil
}

func (s *Service) archive(ctx context.Context, store blob.Store) (blob.Info, error) {
	records := s.Records()
	data, err := json.Marshal(records)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode people: %w", err)
	}
	now := s.clock.Now()
	key := ArchivePrefix + now.Format("20060102T150405.000Z") + ".json"
	info, err := store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: archiveContentType,
		Metadata: map[string]string{
			"people":     strconv.Itoa(len(records)),
			"generation": strconv.FormatUint(s.Generation(), 10),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store archive %s: %w", key, err)
	}
	return info, nil
}

// ListArchives returns the stored snapshots, oldest first.
func (s *Service) ListArchives(ctx context.Context, store blob.Store) ([]blob.Info, error) {
	infos, err := store.List(ctx, ArchivePrefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	return infos, nil
}

// Restore loads the snapshot at key and writes every record back in one
// atomic update. People created after the snapshot are left in place.
func (s *Service) Restore(ctx context.Context, store blob.Store, key string) (int, error) {
	var restored int
	_, err := s.write(ctx, OpRestore, path.Base(key), func(*domain.Forest) (domain.Intent, error) {
		records, err := readArchive(ctx, store, key)
		if err != nil {
			return domain.Intent{}, err
		}
		patch := make(map[string]any, len(records))
		for id, rec := range records {
			patch[id] = rec
		}
		restored = len(records)
		return domain.Intent{Kind: domain.IntentUpdate, Path: domain.PeoplePath, Patch: patch}, nil
	})
	if err != nil {
		return 0, err
	}
	return restored, nil
}

func readArchive(ctx context.Context, store blob.Store, key string) (domain.RawSnapshot, error) {
	_, body, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", key, err)
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", key, err)
	}
	records := domain.RawSnapshot{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", key, err)
	}
	return records, nil
}

// Package syncer holds the synchronization core: pairwise conflict
// detection, the resolution engine and the cycle engine that drives
// push/pull against every remote.
package syncer

import (
	"reflect"
	"time"

	"tasksync/internal/models"
)

// Detect compares two copies of the same task against the last common
// sync point. A conflict exists only when at least one mutable field
// differs and both sides were modified after lastSync; a one-sided change
// is not a conflict, the changed side simply supersedes the other.
func Detect(local, remote *models.Task, lastSync time.Time) *models.Conflict {
	if local == nil || remote == nil || local.ID != remote.ID {
		return nil
	}

	var diffs []models.FieldDiff
	for _, field := range models.MutableFields {
		lv, rv := local.FieldValue(field), remote.FieldValue(field)
		if !reflect.DeepEqual(lv, rv) {
			diffs = append(diffs, models.FieldDiff{Field: field, LocalValue: lv, RemoteValue: rv})
		}
	}
	if len(diffs) == 0 {
		return nil
	}

	if !local.UpdatedAt.After(lastSync) || !remote.UpdatedAt.After(lastSync) {
		return nil
	}

	return &models.Conflict{
		ID:               models.NewID(),
		TaskID:           local.ID,
		FieldDiffs:       diffs,
		LocalSnapshot:    *local,
		RemoteSnapshot:   *remote,
		ResolutionStatus: models.ResolutionPending,
		CreatedAt:        time.Now(),
	}
}

// Merge applies the whole-record last-write-wins policy: the copy with
// the newer updated_at fully replaces the other, no per-field merging.
// Equal timestamps break deterministically on the lexicographically
// smaller source surface name, then on keeping local.
func Merge(local, remote models.Task) models.Task {
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return remote
	}
	if local.UpdatedAt.After(remote.UpdatedAt) {
		return local
	}
	if remote.Source < local.Source {
		return remote
	}
	return local
}

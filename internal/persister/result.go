package persister

import (
	"fmt"

	"github.com/mrlokans/storesync/internal/entities"
)

// Stage names the step at which an item failed.
type Stage string

const (
	StageTransform  Stage = "transform"
	StageNormalized Stage = "normalized"
	StageMirror     Stage = "mirror"
)

// ItemOutcome is a failed item of a batch.
type ItemOutcome struct {
	Index      int
	ExternalID string
	Stage      Stage
	Err        error
}

// Result is the explicit outcome of persisting one batch.
type Result struct {
	ResourceType       entities.ResourceType
	Items              int
	Persisted          int
	TransformFailures  int
	NormalizedFailures int
	MirrorFailures     int
	MirrorErr          error
	Failures           []ItemOutcome
}

func (r *Result) addFailure(o ItemOutcome) {
	switch o.Stage {
	case StageTransform:
		r.TransformFailures++
	case StageNormalized:
		r.NormalizedFailures++
	case StageMirror:
		r.MirrorFailures++
	}
	r.Failures = append(r.Failures, o)
}

// Fatal is true iff the normalized store rejected at least one item.
func (r *Result) Fatal() bool {
	return r.NormalizedFailures > 0
}

// FailedItems counts the non-fatal failures: items that were skipped or
// missing from the mirror.
func (r *Result) FailedItems() int {
	return r.TransformFailures + r.MirrorFailures
}

// Err returns a *BatchPersistError when the batch is fatal.
func (r *Result) Err() error {
	if !r.Fatal() {
		return nil
	}
	e := &BatchPersistError{ResourceType: r.ResourceType, Failed: r.NormalizedFailures, Total: r.Items}
	for _, f := range r.Failures {
		if f.Stage == StageNormalized {
			e.ExternalID = f.ExternalID
			e.Err = f.Err
			break
		}
	}
	return e
}

// BatchPersistError reports normalized writes that failed; the batch must not
// be checkpointed.
type BatchPersistError struct {
	ResourceType entities.ResourceType
	Failed       int
	Total        int
	ExternalID   string // first failed item
	Err          error
}

func (e *BatchPersistError) Error() string {
	return fmt.Sprintf("normalized store rejected %d of %d %s (first %s): %v",
		e.Failed, e.Total, e.ResourceType, e.ExternalID, e.Err)
}

func (e *BatchPersistError) Unwrap() error {
	return e.Err
}

package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrSourceUnavailable signals that the metric store or bill source cannot be read.
	// Fatal to a pipeline run.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedRecord signals a record that cannot be ranked or projected.
	// The unit is skipped and reported.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrIndexRejected signals that the search backend refused a document.
	ErrIndexRejected = errors.New("index rejected")
	// ErrCacheUnavailable signals a cache backend failure. Never fatal.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrRunActive signals that another pipeline run holds the coordinator.
	ErrRunActive = errors.New("run already active")
	// ErrUnknownMetric signals a metric name outside the recognized set.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrSnapshotStore signals a failure persisting or loading a percentile snapshot.
	ErrSnapshotStore = errors.New("snapshot store failure")
)

// MalformedValueError reports a metric value that does not parse as a finite number.
type MalformedValueError struct {
	BillID string
	Metric string
	Value  string
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("%s: bill %s metric %s value %q", ErrMalformedRecord.Error(), e.BillID, e.Metric, e.Value)
}

func (e *MalformedValueError) Unwrap() error { return ErrMalformedRecord }

// Error class labels used in run reports and metrics.
const (
	ClassNone              = ""
	ClassSourceUnavailable = "source_unavailable"
	ClassMalformedRecord   = "malformed_record"
	ClassIndexRejected     = "index_rejected"
	ClassCacheUnavailable  = "cache_unavailable"
	ClassRunActive         = "run_active"
	ClassUnknownMetric     = "unknown_metric"
	ClassNotFound          = "not_found"
	ClassSnapshotStore     = "snapshot_store"
	ClassCanceled          = "canceled"
	ClassInternal          = "internal"
)

// Classify maps err onto the taxonomy label. Unrecognized errors are "internal".
func Classify(err error) string {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrSourceUnavailable):
		return ClassSourceUnavailable
	case errors.Is(err, ErrMalformedRecord):
		return ClassMalformedRecord
	case errors.Is(err, ErrIndexRejected):
		return ClassIndexRejected
	case errors.Is(err, ErrCacheUnavailable):
		return ClassCacheUnavailable
	case errors.Is(err, ErrRunActive):
		return ClassRunActive
	case errors.Is(err, ErrUnknownMetric):
		return ClassUnknownMetric
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrSnapshotStore):
		return ClassSnapshotStore
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassInternal
	}
}

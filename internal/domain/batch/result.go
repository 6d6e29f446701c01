package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK        ItemStatus = "ok"
	StatusUnchanged ItemStatus = "unchanged"
	StatusSkipped   ItemStatus = "skipped"
	StatusError     ItemStatus = "error"
)

// Result is the outcome of processing one item in a batch operation.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewUnchanged reports an item that needed no write.
func NewUnchanged(id string) Result { return Result{id: id, status: StatusUnchanged} }

// NewSkipped reports an item dropped as malformed.
func NewSkipped(id string, err error) Result { return Result{id: id, status: StatusSkipped, err: err} }

// NewError creates a failed batch result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Counts tallies results by status.
type Counts struct {
	OK        int
	Unchanged int
	Skipped   int
	Failed    int
}

// Total returns the number of counted items.
func (c Counts) Total() int { return c.OK + c.Unchanged + c.Skipped + c.Failed }

// Tally counts results by status.
func Tally(results []Result) Counts {
	var c Counts
	for _, r := range results {
		switch r.status {
		case StatusOK:
			c.OK++
		case StatusUnchanged:
			c.Unchanged++
		case StatusSkipped:
			c.Skipped++
		case StatusError:
			c.Failed++
		}
	}
	return c
}

// Written returns the ids of results that changed the target.
func Written(results []Result) []string {
	var ids []string
	for _, r := range results {
		if r.status == StatusOK {
			ids = append(ids, r.id)
		}
	}
	return ids
}

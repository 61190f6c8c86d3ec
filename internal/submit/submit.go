// Package submit delivers completed intake forms, either to a remote
// endpoint or into the state store.
package submit

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// ErrRejected is returned when the endpoint refuses a submission. It is
// not retried.
var ErrRejected = errors.New("submission rejected")

// Receipt identifies an accepted submission.
type Receipt struct {
	ID string
	At time.Time
}

// Submitter delivers the submitted values of a form.
type Submitter interface {
	Submit(ctx context.Context, values url.Values) (Receipt, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, values url.Values) (Receipt, error)

// Submit calls f(ctx, values).
func (f SubmitterFunc) Submit(ctx context.Context, values url.Values) (Receipt, error) {
	return f(ctx, values)
}

package submit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/liveintake/pkg/security"
	"github.com/gabrielmiguelok/liveintake/pkg/state"
)

// KeyPrefix prefixes the keys of stored submissions.
const KeyPrefix = "submissions"

// Record is a submission kept in the state store.
type Record struct {
	ID          string              `msgpack:"id"`
	SubmittedAt time.Time           `msgpack:"submitted_at"`
	Values      map[string][]string `msgpack:"values"`
}

// StoreSubmitter keeps sanitized submissions in a state store under
// submissions:<id>. It is used when no endpoint is configured.
type StoreSubmitter struct {
	records   *state.TypedStore[Record]
	ttl       time.Duration
	sanitizer *security.Sanitizer
	now       func() time.Time
}

// NewStoreSubmitter creates a submitter writing to store. Records expire
// after ttl; zero keeps them.
func NewStoreSubmitter(store state.Store, ttl time.Duration) *StoreSubmitter {
	return &StoreSubmitter{
		records:   state.NewTypedStore[Record](store, state.NewMsgPackSerializer[Record]()),
		ttl:       ttl,
		sanitizer: security.Strict(),
		now:       time.Now,
	}
}

// Submit stores a sanitized record.
func (s *StoreSubmitter) Submit(ctx context.Context, values url.Values) (Receipt, error) {
	rec := Record{
		ID:          uuid.NewString(),
		SubmittedAt: s.now().UTC(),
		Values:      s.sanitizer.Values(values),
	}
	if err := s.records.Set(ctx, RecordKey(rec.ID), rec, s.ttl); err != nil {
		return Receipt{}, fmt.Errorf("store submission %s: %w", rec.ID, err)
	}
	return Receipt{ID: rec.ID, At: rec.SubmittedAt}, nil
}

// Get loads a stored submission.
func (s *StoreSubmitter) Get(ctx context.Context, id string) (Record, error) {
	return s.records.Get(ctx, RecordKey(id))
}

// RecordKey returns the store key of a submission.
func RecordKey(id string) string {
	return state.Key(KeyPrefix, id)
}

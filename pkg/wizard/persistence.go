package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/liveintake/pkg/forms"
	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/state"
)

// Persistence saves and restores the values of a live form under one
// durable record.
type Persistence struct {
	store  state.Store
	key    string
	form   *forms.Form
	ttl    time.Duration
	logger logging.Logger
}

// PersistenceOption configures a Persistence.
type PersistenceOption func(*Persistence)

// WithRecordTTL expires saved records after ttl. Zero keeps them forever.
func WithRecordTTL(ttl time.Duration) PersistenceOption {
	return func(p *Persistence) {
		p.ttl = ttl
	}
}

// WithPersistenceLogger sets the logger.
func WithPersistenceLogger(logger logging.Logger) PersistenceOption {
	return func(p *Persistence) {
		p.logger = logger
	}
}

// NewPersistence binds form to the record key in store.
func NewPersistence(store state.Store, key string, form *forms.Form, opts ...PersistenceOption) *Persistence {
	p := &Persistence{
		store:  store,
		key:    key,
		form:   form,
		logger: logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the record key.
func (p *Persistence) Key() string {
	return p.key
}

// Snapshot captures the current form values.
func (p *Persistence) Snapshot() Snapshot {
	return Capture(p.form)
}

// Save writes a fresh snapshot, replacing any prior record.
func (p *Persistence) Save(ctx context.Context) error {
	data, err := json.Marshal(p.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.store.Set(ctx, p.key, data, p.ttl); err != nil {
		return fmt.Errorf("save %s: %w", p.key, err)
	}
	return nil
}

// HasSaved reports whether a record exists. Storage errors count as no
// record.
func (p *Persistence) HasSaved(ctx context.Context) bool {
	ok, err := p.store.Exists(ctx, p.key)
	if err != nil {
		p.logger.Warn("saved record lookup failed", logging.String("key", p.key), logging.Err(err))
		return false
	}
	return ok
}

// Load reads the saved snapshot. A missing, unreadable or corrupted record
// yields (nil, false).
func (p *Persistence) Load(ctx context.Context) (Snapshot, bool) {
	data, err := p.store.Get(ctx, p.key)
	if err != nil {
		if !errors.Is(err, state.ErrKeyNotFound) {
			p.logger.Warn("saved record unavailable", logging.String("key", p.key), logging.Err(err))
		}
		return nil, false
	}

	snap, skipped, err := DecodeSnapshot(data)
	if err != nil {
		p.logger.Warn("saved record corrupted", logging.String("key", p.key), logging.Err(err))
		return nil, false
	}
	if len(skipped) > 0 {
		p.logger.Debug("skipped saved keys", logging.String("key", p.key), logging.Any("skipped", skipped))
	}
	return snap, true
}

// Restore applies the saved record to the form and returns the changed
// fields. Without a usable record nothing changes.
func (p *Persistence) Restore(ctx context.Context) []*forms.Field {
	snap, ok := p.Load(ctx)
	if !ok {
		return nil
	}
	return Apply(p.form, snap)
}

// Discard deletes the record.
func (p *Persistence) Discard(ctx context.Context) error {
	if err := p.store.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("discard %s: %w", p.key, err)
	}
	return nil
}

package testing

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gabrielmiguelok/liveintake/pkg/state"
)

// ErrFaultInjected is the default error of an injected fault.
var ErrFaultInjected = errors.New("fault: simulated error")

// Fault represents an injectable fault.
type Fault struct {
	Name string
	// Probability of failing while active; 0 means always.
	Probability float64
	Error       error
	Latency     time.Duration
	Active      bool
}

// FaultInjector provides programmatic fault injection.
type FaultInjector struct {
	faults map[string]*Fault
	rng    *rand.Rand
	mu     sync.Mutex
}

// NewFaultInjector creates a new fault injector with a fixed seed.
func NewFaultInjector(seed int64) *FaultInjector {
	return &FaultInjector{
		faults: make(map[string]*Fault),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Register registers a fault.
func (fi *FaultInjector) Register(name string, fault *Fault) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fault.Name = name
	if fault.Error == nil {
		fault.Error = ErrFaultInjected
	}
	fi.faults[name] = fault
}

// Fail registers and activates a fault that always returns err.
func (fi *FaultInjector) Fail(name string, err error) {
	fi.Register(name, &Fault{Error: err, Active: true})
}

// Activate activates a fault.
func (fi *FaultInjector) Activate(name string) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if f, ok := fi.faults[name]; ok {
		f.Active = true
	}
}

// Deactivate deactivates a fault.
func (fi *FaultInjector) Deactivate(name string) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if f, ok := fi.faults[name]; ok {
		f.Active = false
	}
}

// DeactivateAll deactivates all faults.
func (fi *FaultInjector) DeactivateAll() {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	for _, f := range fi.faults {
		f.Active = false
	}
}

// Check returns the fault's error when it is active and fires.
func (fi *FaultInjector) Check(name string) error {
	fi.mu.Lock()
	fault, ok := fi.faults[name]
	if !ok || !fault.Active {
		fi.mu.Unlock()
		return nil
	}
	fires := fault.Probability <= 0 || fi.rng.Float64() < fault.Probability
	latency, err := fault.Latency, fault.Error
	fi.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	if fires {
		return err
	}
	return nil
}

// Store operations a FaultyStore checks, one fault name each.
const (
	FaultGet    = "store.get"
	FaultSet    = "store.set"
	FaultDelete = "store.delete"
	FaultPing   = "store.ping"
)

// FaultyStore wraps a state.Store and fails operations whose fault is
// active. It simulates an unavailable or full durable store.
type FaultyStore struct {
	state.Store
	Faults *FaultInjector
}

// NewFaultyStore wraps store.
func NewFaultyStore(store state.Store) *FaultyStore {
	return &FaultyStore{Store: store, Faults: NewFaultInjector(1)}
}

func (fs *FaultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := fs.Faults.Check(FaultGet); err != nil {
		return nil, err
	}
	return fs.Store.Get(ctx, key)
}

func (fs *FaultyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := fs.Faults.Check(FaultSet); err != nil {
		return err
	}
	return fs.Store.Set(ctx, key, value, ttl)
}

func (fs *FaultyStore) Delete(ctx context.Context, key string) error {
	if err := fs.Faults.Check(FaultDelete); err != nil {
		return err
	}
	return fs.Store.Delete(ctx, key)
}

func (fs *FaultyStore) Ping(ctx context.Context) error {
	if err := fs.Faults.Check(FaultPing); err != nil {
		return err
	}
	return fs.Store.Ping(ctx)
}

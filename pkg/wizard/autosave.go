package wizard

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gabrielmiguelok/liveintake/pkg/logging"
)

// DefaultAutosaveInterval is how often in-progress input is saved.
const DefaultAutosaveInterval = 30 * time.Second

// Autosaver runs periodic save ticks for every live session on one cron
// scheduler.
type Autosaver struct {
	cron   *cron.Cron
	logger logging.Logger
}

// NewAutosaver creates a stopped autosaver. A panicking tick is recovered
// and logged.
func NewAutosaver(logger logging.Logger) *Autosaver {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	cl := cronLogger{logger}
	return &Autosaver{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: logger,
	}
}

// Start begins running ticks.
func (a *Autosaver) Start() {
	a.cron.Start()
}

// Stop stops the scheduler and waits for running ticks.
func (a *Autosaver) Stop() {
	<-a.cron.Stop().Done()
}

// Every calls tick each interval until the returned cancel func is called.
// Each run of tick gets its own goroutine. Intervals below one second are
// rejected.
func (a *Autosaver) Every(interval time.Duration, tick func()) (cancel func(), err error) {
	if interval < time.Second {
		return nil, fmt.Errorf("autosave interval %s is below one second", interval)
	}
	id, err := a.cron.AddFunc("@every "+interval.String(), tick)
	if err != nil {
		return nil, fmt.Errorf("schedule autosave: %w", err)
	}
	return func() { a.cron.Remove(id) }, nil
}

// Len returns the number of scheduled ticks.
func (a *Autosaver) Len() int {
	return len(a.cron.Entries())
}

type cronLogger struct {
	logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.Logger.Debug(msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.Logger.Error(msg, append(pairs(keysAndValues), logging.Err(err))...)
}

func pairs(kv []any) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logging.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

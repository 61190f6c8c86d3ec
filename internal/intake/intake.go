// Package intake is the live multi-step project intake form. A LiveForm
// owns the wizard state of one connection and answers client events with
// DOM commands.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/liveintake/internal/submit"
	"github.com/gabrielmiguelok/liveintake/pkg/core"
	"github.com/gabrielmiguelok/liveintake/pkg/forms"
	"github.com/gabrielmiguelok/liveintake/pkg/js"
	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/metrics"
	"github.com/gabrielmiguelok/liveintake/pkg/router"
	"github.com/gabrielmiguelok/liveintake/pkg/state"
	"github.com/gabrielmiguelok/liveintake/pkg/wizard"
)

// ComponentName is the registered name of the form component.
const ComponentName = "intake"

// User-facing messages.
const (
	RestorePrompt        = "Would you like to restore your previous form data?"
	ResetPrompt          = "Clear the form? Everything you entered will be removed."
	SubmitFailedMessage  = "Sorry, we could not send your details. Please try again."
	SubmittedMessage     = "Thank you! Your project details have been sent."
	submitButtonLabel    = "Submit"
	submitButtonSending  = "Sending..."
	defaultSubmitTimeout = time.Minute
)

var (
	// ErrNoClientID is returned when a live session carries no client id.
	ErrNoClientID = errors.New("intake: session has no client id")
	// ErrNotLastStep is returned for a submit before the last step.
	ErrNotLastStep = errors.New("intake: submit before the last step")
	// ErrUnknownEvent is returned for events the form does not handle.
	ErrUnknownEvent = errors.New("intake: unknown event")
)

// Config holds what every LiveForm of a server shares.
type Config struct {
	Definition *wizard.Definition
	Store      state.Store
	Submitter  submit.Submitter
	// Autosaver schedules interval saves. Nil saves on change only.
	Autosaver        *wizard.Autosaver
	AutosaveInterval time.Duration
	RecordTTL        time.Duration
	// RemoveDelay overrides wizard.RemoveDelay when positive.
	RemoveDelay   time.Duration
	SubmitTimeout time.Duration
	Metrics       *metrics.Metrics
}

// RecordKey returns the durable record key of a client.
func RecordKey(clientID, storageKey string) string {
	return state.Key("intake", clientID, storageKey)
}

// NewFactory returns the component factory for a live route.
func NewFactory(cfg Config) func() core.Component {
	if cfg.Definition == nil {
		cfg.Definition = wizard.DefaultDefinition()
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = wizard.DefaultAutosaveInterval
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	return func() core.Component {
		return &LiveForm{cfg: cfg}
	}
}

// LiveForm is the per-connection form component. All methods run on the
// session goroutine.
type LiveForm struct {
	core.BaseComponent

	cfg Config
	log logging.Logger

	form      *forms.Form
	nav       *wizard.Navigator
	validator *wizard.StepValidator
	pages     *wizard.PageList
	persist   *wizard.Persistence

	// quiet suppresses DOM commands while the initial state is built.
	quiet bool

	awaitingRestore bool
	awaitingReset   bool
	dirty           bool
	submitting      bool
	submitted       bool
	submissionID    string

	stopAutosave func()
}

type autosaveTick struct{}

type submitResult struct {
	receipt submit.Receipt
	err     error
}

// Name returns the component name.
func (l *LiveForm) Name() string {
	return ComponentName
}

// Mount builds the form state. Without a socket (the initial page
// render) nothing is loaded from storage and no timers start.
func (l *LiveForm) Mount(ctx context.Context, params core.Params, session core.Session) error {
	def := l.cfg.Definition
	d := dom{l}
	l.log = logging.L(ctx)

	l.quiet = true
	defer func() { l.quiet = false }()

	l.form = def.BuildForm()
	l.validator = wizard.NewStepValidator(def, l.form, d)

	nav, err := wizard.NewNavigator(def.TotalSteps(), l.validator, d)
	if err != nil {
		return fmt.Errorf("intake navigator: %w", err)
	}
	l.nav = nav

	socket := l.Socket()
	if step, rep := def.RepeatableStep(); rep != nil {
		var sched wizard.Scheduler
		if socket != nil {
			sched = socket
		}
		l.pages = wizard.NewPageList(*rep, step, l.form, d, sched)
		if l.cfg.RemoveDelay > 0 {
			l.pages.SetRemoveDelay(l.cfg.RemoveDelay)
		}
		l.pages.Init()
	}

	if socket == nil {
		return nil
	}
	return l.mountLive(ctx, session)
}

func (l *LiveForm) mountLive(ctx context.Context, session core.Session) error {
	clientID := session.GetString(router.SessionClientID)
	if clientID == "" {
		return ErrNoClientID
	}
	if l.cfg.Store == nil {
		return errors.New("intake: no state store configured")
	}

	l.persist = wizard.NewPersistence(l.cfg.Store, RecordKey(clientID, l.cfg.Definition.StorageKey), l.form,
		wizard.WithRecordTTL(l.cfg.RecordTTL),
		wizard.WithPersistenceLogger(l.log),
	)

	if l.persist.HasSaved(ctx) {
		l.awaitingRestore = true
		l.Socket().Exec(js.JS.Confirm(RestorePrompt, "restore_accept", "restore_decline"))
	}

	if l.cfg.Autosaver != nil {
		socket := l.Socket()
		stop, err := l.cfg.Autosaver.Every(l.cfg.AutosaveInterval, func() {
			socket.Post(autosaveTick{})
		})
		if err != nil {
			return err
		}
		l.stopAutosave = stop
	}
	return nil
}

// HandleEvent dispatches client events.
func (l *LiveForm) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	switch event {
	case "next":
		return l.handleNext(ctx)
	case "prev":
		return l.handlePrev(ctx)
	case "goto":
		return l.handleGoto(ctx, payload)
	case "add_page":
		return l.handleAddPage(ctx)
	case "remove_page":
		return l.handleRemovePage(ctx, payload)
	case "input":
		return l.handleInput(ctx, payload)
	case "change":
		return l.handleChange(ctx, payload)
	case "blur":
		return l.handleBlur(ctx, payload)
	case "restore_accept":
		return l.handleRestore(ctx, true)
	case "restore_decline":
		return l.handleRestore(ctx, false)
	case "reset":
		return l.handleReset(ctx)
	case "reset_confirm":
		return l.handleResetConfirm(ctx)
	case "reset_cancel":
		l.awaitingReset = false
		return nil
	case "submit":
		return l.handleSubmit(ctx)
	}
	return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
}

// HandleInfo handles autosave ticks and submission results.
func (l *LiveForm) HandleInfo(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case autosaveTick:
		l.autosave(ctx, "interval")
	case submitResult:
		l.finishSubmit(ctx, m)
	}
	return nil
}

// Terminate stops autosaving and keeps unsaved input when the
// connection ends for any reason.
func (l *LiveForm) Terminate(ctx context.Context, reason core.TerminateReason) error {
	if l.stopAutosave != nil {
		l.stopAutosave()
		l.stopAutosave = nil
	}
	l.autosave(context.WithoutCancel(ctx), "terminate")
	return nil
}

// autosave writes a snapshot when there is unsaved input. Nothing is
// written while the restore prompt is open, so the old record survives
// until the user answers. Storage failures are logged and retried on
// the next trigger.
func (l *LiveForm) autosave(ctx context.Context, trigger string) {
	if l.persist == nil || l.awaitingRestore || l.submitted || l.submitting || !l.dirty {
		return
	}

	err := l.persist.Save(ctx)
	l.cfg.Metrics.Autosaved(trigger, err)
	if err != nil {
		l.log.Warn("autosave failed",
			logging.String("trigger", trigger),
			logging.String("key", l.persist.Key()),
			logging.Err(err),
		)
		return
	}
	l.dirty = false
}

// Navigator returns the step navigator.
func (l *LiveForm) Navigator() *wizard.Navigator {
	return l.nav
}

// Pages returns the repeatable page list, or nil.
func (l *LiveForm) Pages() *wizard.PageList {
	return l.pages
}

// Form returns the live form.
func (l *LiveForm) Form() *forms.Form {
	return l.form
}

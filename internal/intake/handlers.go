package intake

import (
	"context"
	"fmt"

	"github.com/gabrielmiguelok/liveintake/pkg/forms"
	"github.com/gabrielmiguelok/liveintake/pkg/js"
	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/protocol"
	"github.com/gabrielmiguelok/liveintake/pkg/wizard"
)

func (l *LiveForm) handleNext(ctx context.Context) error {
	if l.nav.Advance() {
		l.cfg.Metrics.StepChanged("forward")
	}
	return nil
}

func (l *LiveForm) handlePrev(ctx context.Context) error {
	if l.nav.Retreat() {
		l.cfg.Metrics.StepChanged("back")
	}
	return nil
}

func (l *LiveForm) handleGoto(ctx context.Context, payload map[string]any) error {
	step := protocol.ToInt(payload["step"])
	from := l.nav.Current()
	if l.nav.JumpTo(step) && step != from {
		l.cfg.Metrics.StepChanged("jump")
	}
	return nil
}

func (l *LiveForm) handleAddPage(ctx context.Context) error {
	if l.pages == nil {
		return nil
	}
	l.pages.Add()
	l.dirty = true
	l.cfg.Metrics.PageEntry("add")
	return nil
}

func (l *LiveForm) handleRemovePage(ctx context.Context, payload map[string]any) error {
	if l.pages == nil {
		return nil
	}
	if l.pages.Remove(protocol.ToInt(payload["id"])) {
		l.dirty = true
		l.cfg.Metrics.PageEntry("remove")
	}
	return nil
}

// handleInput applies live formatting while the user types. Events for
// controls the form does not know are ignored.
func (l *LiveForm) handleInput(ctx context.Context, payload map[string]any) error {
	f, _ := l.locate(str(payload, "id"))
	if f == nil || f.Type.IsChoice() {
		return nil
	}
	raw := str(payload, "value")
	d := dom{l}

	value := raw
	switch {
	case f.Type == forms.FieldTel:
		value = wizard.FormatPhone(raw)
	case f.Type == forms.FieldTextarea && f.MaxLength > 0:
		var c wizard.Counter
		value, c = wizard.LimitText(raw, f.MaxLength)
		d.exec(counterCommands(f.ID, c)...)
	}
	if value != raw {
		d.exec(js.JS.SetProp(js.ID(f.ID), "value", value))
	}

	if f.Value != value {
		f.Value = value
		l.dirty = true
	}
	if f.Required {
		d.feedback(f.ID, wizard.RequiredFeedback(value, false))
	}
	return nil
}

// handleChange commits a control value. Choice controls report the
// option id, its value and whether it is checked.
func (l *LiveForm) handleChange(ctx context.Context, payload map[string]any) error {
	f, opt := l.locate(str(payload, "id"))
	if f == nil {
		return nil
	}

	switch {
	case f.Type.IsChoice() && opt == nil:
		return nil
	case opt != nil:
		checked, _ := payload["checked"].(bool)
		f.SetChecked(opt.Value, checked)
		dom{l}.syncReveals(wizard.ApplyReveals(l.cfg.Definition.Reveals, l.form))
	case f.Type == forms.FieldSelect:
		value := str(payload, "value")
		if f.Option(value) == nil {
			return fmt.Errorf("field %s has no option %q", f.Name, value)
		}
		f.Value = value
	case f.Type == forms.FieldTel:
		f.Value = wizard.FormatPhone(str(payload, "value"))
	case f.Type == forms.FieldTextarea && f.MaxLength > 0:
		f.Value, _ = wizard.LimitText(str(payload, "value"), f.MaxLength)
	default:
		f.Value = str(payload, "value")
	}

	l.dirty = true
	l.autosave(ctx, "change")
	return nil
}

func (l *LiveForm) handleBlur(ctx context.Context, payload map[string]any) error {
	f, _ := l.locate(str(payload, "id"))
	if f == nil || f.Type.IsChoice() {
		return nil
	}
	value := str(payload, "value")
	d := dom{l}

	if f.Type == forms.FieldEmail {
		fb, msg := wizard.CheckEmail(value)
		f.Validity = msg
		d.exec(js.JS.SetValidity(js.ID(f.ID), msg))
		if fb != wizard.FeedbackNone {
			d.feedback(f.ID, fb)
			return nil
		}
	}
	if f.Required {
		d.feedback(f.ID, wizard.RequiredFeedback(value, true))
	}
	return nil
}

// handleRestore answers the restore prompt raised on mount. Answers
// without an open prompt are ignored.
func (l *LiveForm) handleRestore(ctx context.Context, accept bool) error {
	if !l.awaitingRestore || l.persist == nil {
		return nil
	}
	l.awaitingRestore = false
	log := l.log.With(logging.String("key", l.persist.Key()))

	if !accept {
		if err := l.persist.Discard(ctx); err != nil {
			log.Warn("discard saved record failed", logging.Err(err))
		}
		l.cfg.Metrics.Restored("declined")
		return nil
	}

	changed := l.persist.Restore(ctx)
	d := dom{l}
	d.syncFields(changed)
	d.syncReveals(wizard.ApplyReveals(l.cfg.Definition.Reveals, l.form))

	outcome := "restored"
	if len(changed) == 0 {
		outcome = "empty"
	}
	l.cfg.Metrics.Restored(outcome)
	log.Debug("saved record restored", logging.Int("fields", len(changed)))
	return nil
}

func (l *LiveForm) handleReset(ctx context.Context) error {
	l.awaitingReset = true
	dom{l}.exec(js.JS.Confirm(ResetPrompt, "reset_confirm", "reset_cancel"))
	return nil
}

// handleResetConfirm clears every value and selection. The current step
// and the page entries stay.
func (l *LiveForm) handleResetConfirm(ctx context.Context) error {
	if !l.awaitingReset {
		return nil
	}
	l.awaitingReset = false

	l.form.Reset()
	d := dom{l}
	d.syncFields(l.form.Fields())
	d.syncReveals(wizard.ApplyReveals(l.cfg.Definition.Reveals, l.form))
	d.exec(
		js.JS.RemoveClass("#intake-form .error", "error"),
		js.JS.RemoveClass("#intake-form .success", "success"),
	)
	l.dirty = true
	return nil
}

// handleSubmit validates the whole form and hands the values to the
// submitter on its own goroutine. The first incomplete step is shown
// with its notice. The result comes back as a mailbox
// message.
func (l *LiveForm) handleSubmit(ctx context.Context) error {
	if l.submitting || l.submitted {
		return nil
	}
	if !l.nav.State().Last() {
		return ErrNotLastStep
	}

	for _, rule := range l.cfg.Definition.ChoiceRules() {
		if !l.validator.RequireChoice(rule.Field, rule.SubmitMessage) {
			return nil
		}
	}
	if step, n := l.validator.Complete(); step != 0 {
		if step != l.nav.Current() && l.nav.JumpTo(step) {
			l.cfg.Metrics.StepChanged("jump")
		}
		dom{l}.Notify(n)
		return nil
	}

	socket := l.Socket()
	if socket == nil || l.cfg.Submitter == nil {
		return fmt.Errorf("intake: submissions are not available")
	}

	l.submitting = true
	dom{l}.exec(
		js.JS.SetProp(js.ID("btn-submit"), "disabled", true),
		js.JS.SetText(js.ID("btn-submit"), submitButtonSending),
	)

	values := l.form.Values()
	submitter := l.cfg.Submitter
	timeout := l.cfg.SubmitTimeout
	go func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		receipt, err := submitter.Submit(sctx, values)
		socket.Dispatch(submitResult{receipt: receipt, err: err})
	}()
	return nil
}

// finishSubmit runs on the session goroutine once the submitter
// answered. The saved record is cleared only after a confirmed success.
func (l *LiveForm) finishSubmit(ctx context.Context, res submitResult) {
	l.submitting = false
	l.cfg.Metrics.Submitted(res.err)
	d := dom{l}

	if res.err != nil {
		l.log.Error("submission failed", logging.Err(res.err))
		d.exec(
			js.JS.SetProp(js.ID("btn-submit"), "disabled", false),
			js.JS.SetText(js.ID("btn-submit"), submitButtonLabel),
		)
		d.Notify(wizard.Notice{Kind: wizard.NoticeSubmitFailed, Message: SubmitFailedMessage})
		return
	}

	l.submitted = true
	l.submissionID = res.receipt.ID
	if l.stopAutosave != nil {
		l.stopAutosave()
		l.stopAutosave = nil
	}
	if l.persist != nil {
		if err := l.persist.Discard(ctx); err != nil {
			l.log.Warn("clear saved record failed", logging.String("key", l.persist.Key()), logging.Err(err))
		}
	}
	l.log.Info("form submitted", logging.String("submission_id", res.receipt.ID))

	d.exec(
		js.JS.Hide(js.ID("intake-form")),
		js.JS.SetText(js.ID("submission-id"), res.receipt.ID),
		js.JS.Show(js.ID("success-message")),
		js.JS.ScrollTop(),
	)
}

// locate finds the field rendered with a control id. For choice groups
// the option owning the id is returned too.
func (l *LiveForm) locate(id string) (*forms.Field, *forms.Option) {
	if id == "" {
		return nil, nil
	}
	if f := l.form.ByID(id); f != nil {
		return f, nil
	}
	for _, f := range l.form.Fields() {
		if !f.Type.IsChoice() {
			continue
		}
		if opt := f.OptionByID(id); opt != nil {
			return f, opt
		}
	}
	return nil, nil
}

func str(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

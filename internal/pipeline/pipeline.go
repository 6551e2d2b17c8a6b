// Package pipeline runs one registration submission: password check,
// ruleset, multipart packaging, the create-user call and the resulting
// updates of the form view.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ulift/internal/client"
	"ulift/internal/models"
	"ulift/internal/utils"
	"ulift/internal/validation"
)

// Banners shown when the users API gives no message of its own.
const (
	BannerGeneric  = "COULD NOT REGISTER, PLEASE TRY AGAIN"
	BannerInFlight = "A REGISTRATION IS ALREADY IN PROGRESS"
)

// ErrSubmissionInFlight is returned by Submit while an earlier submission of
// the same form has not finished.
var ErrSubmissionInFlight = errors.New("submission already in flight")

// UserCreator is the users API operation the pipeline calls.
type UserCreator interface {
	CreateUser(ctx context.Context, p *client.Payload) (*client.CreateUserResponse, error)
}

// FormView is the page the pipeline reports into.
type FormView interface {
	// Fill shows the values of the attempt being run.
	Fill(form *models.RegistrationForm)
	// SetFieldErrors replaces every displayed field error with errs.
	SetFieldErrors(errs validation.FieldErrors)
	ClearFieldErrors()
	// ClearValues empties the given fields, or every field when none are given.
	ClearValues(fields ...string)
	ShowBanner(msg string)
	HideBanner()
}

// Navigator moves the user on after a successful registration.
type Navigator interface {
	NavigateToLogin()
}

// Result describes how an attempt ended.
type Result struct {
	State       State
	FieldErrors validation.FieldErrors
	Banner      string
	UserID      string
	Err         error
}

// Options configures a Pipeline. Ruleset defaults to validation.Registration().
type Options struct {
	Ruleset   *validation.Ruleset
	Users     UserCreator
	View      FormView
	Navigator Navigator
	Logger    *zap.Logger
	// Observe is called once per finished attempt.
	Observe func(s State, took time.Duration)
}

// Pipeline belongs to a single form instance. At most one create-user request
// per instance is in flight.
type Pipeline struct {
	ruleset  *validation.Ruleset
	users    UserCreator
	view     FormView
	nav      Navigator
	log      *zap.Logger
	observe  func(State, time.Duration)
	inFlight atomic.Bool
	state    atomic.Int32
}

// New builds a pipeline.
func New(opts Options) *Pipeline {
	rs := opts.Ruleset
	if rs == nil {
		rs = validation.Registration()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		ruleset: rs,
		users:   opts.Users,
		view:    opts.View,
		nav:     opts.Navigator,
		log:     log,
		observe: opts.Observe,
	}
}

// State returns the step the current attempt is in, Idle between attempts.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// InFlight reports whether a submission is running.
func (p *Pipeline) InFlight() bool { return p.inFlight.Load() }

// Submit runs one attempt over a snapshot of form. The returned error is
// ErrSubmissionInFlight when the attempt was refused; every other outcome,
// failures included, is described by the Result and already shown on the view.
func (p *Pipeline) Submit(ctx context.Context, form *models.RegistrationForm) (*Result, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.view.ShowBanner(BannerInFlight)
		p.log.Info("registration refused, another one is in flight")
		res := &Result{State: Rejected, Banner: BannerInFlight, Err: ErrSubmissionInFlight}
		p.finish(res, time.Now())
		return res, ErrSubmissionInFlight
	}
	start := time.Now()
	defer func() {
		p.state.Store(int32(Idle))
		p.inFlight.Store(false)
	}()

	form = snapshot(form)
	p.view.Fill(form)
	res := p.run(ctx, form)
	p.finish(res, start)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, form *models.RegistrationForm) *Result {
	p.enter(Validating)
	if errs := validation.CheckPasswords(form); errs != nil {
		p.view.SetFieldErrors(errs)
		p.view.ClearValues(models.FieldPassword, models.FieldPasswordConfirm)
		return &Result{State: PasswordMismatch, FieldErrors: errs}
	}
	if errs := p.ruleset.Validate(form); errs != nil {
		p.view.SetFieldErrors(errs)
		return &Result{State: Invalid, FieldErrors: errs}
	}

	p.enter(Packaging)
	payload, err := Encode(form)
	if err != nil {
		return p.fail(err)
	}

	p.enter(Sending)
	resp, err := p.users.CreateUser(ctx, payload)
	if err != nil {
		return p.fail(err)
	}
	if !resp.Created() {
		msg := strings.ToUpper(strings.TrimSpace(resp.Error))
		if msg == "" {
			msg = BannerGeneric
		}
		p.view.ShowBanner(msg)
		return &Result{State: APIError, Banner: msg}
	}

	p.view.HideBanner()
	if p.nav != nil {
		p.nav.NavigateToLogin()
	}
	p.view.ClearFieldErrors()
	p.view.ClearValues()
	return &Result{State: Success, UserID: string(resp.ID)}
}

// fail classifies an error raised while packaging or sending. Structured
// per-field failures go back onto the fields; anything else gets the retry banner.
func (p *Pipeline) fail(err error) *Result {
	var fe validation.FieldErrors
	if errors.As(err, &fe) && !fe.Empty() {
		p.view.SetFieldErrors(fe)
		return &Result{State: NetworkError, FieldErrors: fe, Err: err}
	}
	p.log.Warn("registration failed", zap.Int("upstream_status", utils.CodeOf(err)), zap.Error(err))
	p.view.ShowBanner(BannerGeneric)
	return &Result{State: NetworkError, Banner: BannerGeneric, Err: err}
}

func (p *Pipeline) enter(s State) { p.state.Store(int32(s)) }

func (p *Pipeline) finish(res *Result, start time.Time) {
	p.log.Debug("registration attempt finished",
		zap.Stringer("state", res.State),
		zap.Int("field_errors", len(res.FieldErrors)))
	if p.observe != nil {
		p.observe(res.State, time.Since(start))
	}
}

func snapshot(form *models.RegistrationForm) *models.RegistrationForm {
	if form == nil {
		return &models.RegistrationForm{}
	}
	cp := *form
	return &cp
}

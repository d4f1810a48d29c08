// internal/form/submit.go
//
// Adept Users – Forms subsystem: submission pipeline.
//
// Context
//   Submit drives one attempt through Validating, Submitting, and a terminal
//   state.  Local validation failures never reach the Creator.  Remote
//   rejections, transport errors, and even a panicking Creator are converted
//   into general errors, so Submit always returns a SubmissionResult and never
//   an error.  The isSubmitting flag is released by a deferred call, so no
//   exit path can leave it stuck.
//
// Workflow
//   •  validateAllLocked re-checks every descriptor and the confirmation rule.
//   •  The request is built from a copy of the fields while the lock is held;
//      the lock is released for the remote call.
//   •  On success the role's post-create actions run (see actions.go).
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/yanizio/adept-users/internal/logger"
	"github.com/yanizio/adept-users/internal/metrics"
)

// Fallback messages.
const (
	MsgSubmitFailed     = "Failed to create user.  Please try again."
	MsgSubmitInProgress = "A submission is already in progress."
	MsgFormClosed       = "This form has been closed."
)

// Submission outcomes, used as metric labels.
const (
	outcomeSuccess   = "success"
	outcomeInvalid   = "invalid"
	outcomeRejected  = "rejected"
	outcomeException = "error"
	outcomeBusy      = "busy"
)

// -----------------------------------------------------------------------------
// Creator contract
// -----------------------------------------------------------------------------

// CreateRequest is what the pipeline hands to the Creator.
type CreateRequest struct {
	Role     string
	Payload  any   // Role-specific payload; see PayloadFunc.
	Image    *File // Optional profile image.
	ImageAlt string
}

// CreateResponse is the Creator's verdict.  Success false with a nil error
// is a business rejection; Error carries the server's message when one was
// extractable.
type CreateResponse struct {
	Success     bool
	User        map[string]any
	Message     string
	Error       string
	FieldErrors map[string][]string
}

// Creator is the remote user-creation endpoint.
type Creator interface {
	CreateUser(ctx context.Context, req CreateRequest) (CreateResponse, error)
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc func(ctx context.Context, req CreateRequest) (CreateResponse, error)

// CreateUser implements Creator.
func (fn CreatorFunc) CreateUser(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	return fn(ctx, req)
}

// PayloadFunc turns the validated field map into the request payload.
type PayloadFunc func(fields map[string]any) (any, error)

// SubmissionResult is the outcome of one Submit call.  Error is set only
// when Success is false.
type SubmissionResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
	User    map[string]any `json:"user,omitempty"`
}

// -----------------------------------------------------------------------------
// Pipeline
// -----------------------------------------------------------------------------

// Submit validates the whole form and, when it passes, calls the Creator.
// The outcome is written back into the form state and returned.
func (f *Form) Submit(ctx context.Context) SubmissionResult {
	log := logger.FromContext(ctx).With("role", f.role)
	started := time.Now()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return SubmissionResult{Error: MsgFormClosed}
	}
	if f.st.isSubmitting {
		f.mu.Unlock()
		f.observe(outcomeBusy, started)
		return SubmissionResult{Error: MsgSubmitInProgress}
	}

	// Validating
	if errs := f.validateAllLocked(); len(errs) > 0 {
		f.st.generalErrors = errs
		f.mu.Unlock()
		f.observe(outcomeInvalid, started)
		log.Debugw("submission failed validation", "errors", len(errs))
		return SubmissionResult{Error: strings.Join(errs, "\n")}
	}

	req, event, err := f.buildRequestLocked()
	if err != nil {
		f.st.generalErrors = []string{MsgSubmitFailed}
		f.mu.Unlock()
		f.observe(outcomeException, started)
		log.Errorw("build create request", "error", err)
		return SubmissionResult{Error: MsgSubmitFailed}
	}

	// Submitting
	f.st.isSubmitting = true
	f.mu.Unlock()
	defer f.releaseSubmitting()

	resp, err := f.callCreator(ctx, req)

	switch {
	case err != nil:
		msg := lo.Ternary(err.Error() != "", err.Error(), MsgSubmitFailed)
		f.applyResult(func(st *state) { st.generalErrors = []string{msg} })
		f.observe(outcomeException, started)
		log.Warnw("create user call failed", "error", err)
		return SubmissionResult{Error: msg}

	case !resp.Success:
		msg := lo.Ternary(resp.Error != "", resp.Error, MsgSubmitFailed)
		f.applyResult(func(st *state) {
			st.generalErrors = []string{msg}
			for k, msgs := range resp.FieldErrors {
				if f.set.Has(k) && len(msgs) > 0 {
					st.fieldErrors[k] = append(st.fieldErrors[k], msgs...)
				}
			}
		})
		f.observe(outcomeRejected, started)
		log.Infow("create user rejected", "message", msg)
		return SubmissionResult{Error: msg}
	}

	f.observe(outcomeSuccess, started)
	log.Infow("user created", "email", event.Fields["email"])

	event.User = resp.User
	f.runActions(ctx, event)

	return SubmissionResult{Success: true, Message: resp.Message, User: resp.User}
}

// callCreator shields the pipeline from a panicking Creator.
func (f *Form) callCreator(ctx context.Context, req CreateRequest) (resp CreateResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return f.creator.CreateUser(ctx, req)
}

// applyResult writes the outcome unless the form was discarded meanwhile.
func (f *Form) applyResult(apply func(*state)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	apply(&f.st)
}

func (f *Form) releaseSubmitting() {
	f.mu.Lock()
	f.st.isSubmitting = false
	f.mu.Unlock()
}

func (f *Form) observe(outcome string, started time.Time) {
	metrics.SubmissionsTotal.WithLabelValues(f.role, outcome).Inc()
	metrics.SubmissionDuration.WithLabelValues(f.role).Observe(time.Since(started).Seconds())
}

// validateAllLocked records per-field errors and returns the general error
// list: one "Label: message" entry per failing field, then the confirmation
// mismatch.  Caller holds f.mu.
func (f *Form) validateAllLocked() []string {
	var general []string
	for _, d := range f.set.fields {
		v := f.st.fields[d.Key]
		msgs := f.validator.ValidateField(d, v)
		if file, ok := v.(*File); ok && file != nil && len(msgs) == 0 {
			if msg := ValidateFileUpload(file, f.upload.MaxBytes, f.upload.AllowedTypes); msg != "" {
				msgs = []string{msg}
			}
		}
		if len(msgs) == 0 {
			continue
		}
		f.st.fieldErrors[d.Key] = msgs
		for _, m := range msgs {
			general = append(general, d.Label+": "+m)
		}
	}

	for _, d := range f.set.fields {
		if d.Rule == nil || d.Rule.Matches == "" {
			continue
		}
		if _, failed := f.st.fieldErrors[d.Key]; failed {
			continue
		}
		if fmt.Sprint(f.st.fields[d.Key]) != fmt.Sprint(f.st.fields[d.Rule.Matches]) {
			general = append(general, customOr(d, MsgPasswordMismatch))
		}
	}
	return general
}

// buildRequestLocked snapshots the fields into a CreateRequest and the
// matching post-create event.  Caller holds f.mu.
func (f *Form) buildRequestLocked() (CreateRequest, Created, error) {
	fields := cloneFields(f.st.fields)
	canonicalize(f.set, fields)

	payload, err := f.payload(fields)
	if err != nil {
		return CreateRequest{}, Created{}, fmt.Errorf("build %s payload: %w", f.role, err)
	}

	req := CreateRequest{Role: f.role, Payload: payload}
	req.Image, _ = fields[FieldProfileImage].(*File)
	req.ImageAlt, _ = fields[FieldImageAlt].(string)

	return req, Created{Role: f.role, Fields: publicFields(f.set, fields)}, nil
}

// rawPayload is the default PayloadFunc: the field map without files and
// without confirmation fields.
func rawPayload(set *FieldSet) PayloadFunc {
	return func(fields map[string]any) (any, error) {
		out := make(map[string]any, len(fields))
		for _, d := range set.fields {
			if d.Kind == KindFile || (d.Rule != nil && d.Rule.Matches != "") {
				continue
			}
			out[d.Key] = fields[d.Key]
		}
		return out, nil
	}
}

// canonicalize rewrites validated values into the shape the Creator
// expects: blank numbers become nil, numeric strings become float64 and
// emails lose surrounding whitespace.
func canonicalize(set *FieldSet, fields map[string]any) {
	for _, d := range set.fields {
		v, ok := fields[d.Key]
		if !ok {
			continue
		}
		switch d.Kind {
		case KindNumber:
			if isEmpty(v) {
				fields[d.Key] = nil
			} else if n, ok := toFloat(v); ok {
				fields[d.Key] = n
			}
		case KindEmail:
			if s, ok := v.(string); ok {
				fields[d.Key] = strings.TrimSpace(s)
			}
		}
	}
}

// publicFields drops secrets and files so the map is safe to log or store.
func publicFields(set *FieldSet, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, d := range set.fields {
		if d.Kind == KindPassword || d.Kind == KindFile {
			continue
		}
		out[d.Key] = fields[d.Key]
	}
	return out
}

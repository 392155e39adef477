// Package validate sanitizes and checks the identity fields a visitor submits
// before they are used to open a session.
package validate

import (
	"regexp"

	"github.com/rs/zerolog"

	"github.com/go-go-golems/supportchat/pkg/widget/eventbus"
)

type Kind string

const (
	KindText  Kind = "text"
	KindEmail Kind = "email"
)

// Field is a named form value. Validate rewrites Value with its sanitized form.
type Field struct {
	Name  string
	Kind  Kind
	Value string
}

// EffectiveKind returns Kind, falling back to email for a field named "email".
func (f *Field) EffectiveKind() Kind {
	if f.Kind != "" {
		return f.Kind
	}
	if f.Name == "email" {
		return KindEmail
	}
	return KindText
}

type Result struct {
	Fails   bool
	Failed  []string
	Hostile []string
}

var emailPattern = regexp.MustCompile(`^[^\s@<>()\[\],;:"]+@[^\s@<>()\[\],;:"]+\.[^\s@<>()\[\],;:".]{2,}$`)

// IsEmail reports whether v has the shape of an email address.
func IsEmail(v string) bool {
	return emailPattern.MatchString(v)
}

type Validator struct {
	emitter eventbus.Emitter
	logger  zerolog.Logger
}

type Option func(*Validator)

func WithLogger(logger zerolog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New returns a validator reporting through emitter. A nil emitter disables
// notifications.
func New(emitter eventbus.Emitter, opts ...Option) *Validator {
	v := &Validator{
		emitter: emitter,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate sanitizes every field in place and reports whether any failed.
// Failures and injection attempts are announced on the bus; Validate itself
// never returns an error.
func (v *Validator) Validate(fields []*Field) Result {
	var res Result
	for _, f := range fields {
		if f == nil {
			continue
		}
		clean, hostile := Sanitize(f.Value)
		f.Value = clean
		if hostile {
			res.Hostile = append(res.Hostile, f.Name)
			v.logger.Warn().Str("field", f.Name).Msg("executable markup stripped from field")
			v.emit(eventbus.HackingAttemptedEvent{Field: f.Name})
		}

		failed := clean == "" || (f.EffectiveKind() == KindEmail && !IsEmail(clean))
		if failed {
			res.Fails = true
			res.Failed = append(res.Failed, f.Name)
			v.logger.Debug().Str("field", f.Name).Msg("field failed validation")
			v.emit(eventbus.FormValidationFailedEvent{Field: f.Name})
		}
	}
	return res
}

func (v *Validator) emit(p eventbus.Payload) {
	if v.emitter == nil {
		return
	}
	if err := v.emitter.Trigger(p); err != nil {
		v.logger.Error().Err(err).Str("event", string(p.EventName())).Msg("validation notification failed")
	}
}

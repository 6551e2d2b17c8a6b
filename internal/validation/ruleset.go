// Package validation holds the registration form ruleset: a static table of
// field -> ordered (predicate, message) pairs evaluated in a single pass.
package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"ulift/internal/models"
)

// Messages shown under each field.
const (
	MsgNameRequired     = "name required"
	MsgNameInvalid      = "invalid name"
	MsgPhoneRequired    = "required"
	MsgPhoneNotNumber   = "must be a number"
	MsgPhoneInvalid     = "invalid phone"
	MsgCampus           = "select a campus"
	MsgEmailRequired    = "email required"
	MsgEmailInvalid     = "invalid email"
	MsgCPFInvalid       = "invalid CPF"
	MsgRARequired       = "send an RA photo"
	MsgPasswordRequired = "password required"
	MsgPasswordInvalid  = "must contain only letters or numbers"
	MsgConfirmRequired  = "confirm your password"
	MsgPasswordMismatch = "passwords do not match"
)

const (
	minNameLen   = 3
	minPhoneLen  = 9
	minCampusLen = 3
	minCPFLen    = 11
)

var (
	validate     = validator.New()
	alphanumeric = regexp.MustCompile(`[A-Za-z0-9]`)
)

// Value is what a rule sees of one field.
type Value struct {
	Text string
	File *models.Upload
}

// Rule is a single predicate with the message reported when it fails.
type Rule struct {
	Message string
	Valid   func(Value) bool
}

// Ruleset maps fields to their ordered rules.
type Ruleset struct {
	fields []string
	rules  map[string][]Rule
}

// New builds an empty ruleset evaluating fields in the given order.
func New(fields ...string) *Ruleset {
	return &Ruleset{fields: fields, rules: make(map[string][]Rule)}
}

// Add appends rules for a field. Fields not listed in New are appended to the order.
func (rs *Ruleset) Add(field string, rules ...Rule) *Ruleset {
	if _, ok := rs.rules[field]; !ok && !contains(rs.fields, field) {
		rs.fields = append(rs.fields, field)
	}
	rs.rules[field] = append(rs.rules[field], rules...)
	return rs
}

// Validate evaluates every field and collects the first failing message of each.
// It returns nil when the form is accepted.
func (rs *Ruleset) Validate(form *models.RegistrationForm) FieldErrors {
	var errs FieldErrors
	for _, field := range rs.fields {
		v := Value{Text: form.Value(field), File: form.File(field)}
		for _, rule := range rs.rules[field] {
			if rule.Valid(v) {
				continue
			}
			if errs == nil {
				errs = make(FieldErrors)
			}
			errs[field] = rule.Message
			break
		}
	}
	return errs
}

// Registration is the ruleset for the uLift registration page.
func Registration() *Ruleset {
	campusTag := "oneof=" + strings.Join(models.CampusValues(), " ")
	return New(models.FieldOrder...).
		Add(models.FieldName,
			Rule{MsgNameRequired, required},
			Rule{MsgNameInvalid, minLen(minNameLen)},
		).
		Add(models.FieldPhone,
			Rule{MsgPhoneRequired, required},
			Rule{MsgPhoneNotNumber, tag("numeric")},
			Rule{MsgPhoneInvalid, minDigits(minPhoneLen)},
		).
		Add(models.FieldCampus,
			Rule{MsgCampus, required},
			Rule{MsgCampus, minLen(minCampusLen)},
			Rule{MsgCampus, tag(campusTag)},
		).
		Add(models.FieldEmail,
			Rule{MsgEmailRequired, required},
			Rule{MsgEmailInvalid, tag("email")},
		).
		Add(models.FieldCPF,
			Rule{MsgCPFInvalid, required},
			Rule{MsgCPFInvalid, minLen(minCPFLen)},
		).
		Add(models.FieldRA,
			Rule{MsgRARequired, filePresent},
		).
		Add(models.FieldPassword,
			Rule{MsgPasswordRequired, required},
			Rule{MsgPasswordInvalid, matches(alphanumeric)},
		).
		Add(models.FieldPasswordConfirm,
			Rule{MsgConfirmRequired, required},
		)
}

// CheckPasswords is the cross-field check run before the ruleset. It returns
// errors for both password fields when they differ.
func CheckPasswords(form *models.RegistrationForm) FieldErrors {
	if form.Password == form.PasswordConfirm {
		return nil
	}
	return FieldErrors{
		models.FieldPassword:        MsgPasswordMismatch,
		models.FieldPasswordConfirm: MsgPasswordMismatch,
	}
}

func required(v Value) bool { return v.Text != "" }

func filePresent(v Value) bool { return v.File.Present() }

func minLen(n int) func(Value) bool {
	return func(v Value) bool { return utf8.RuneCountInString(v.Text) >= n }
}

func minDigits(n int) func(Value) bool {
	return func(v Value) bool {
		count := 0
		for _, r := range v.Text {
			if unicode.IsDigit(r) {
				count++
			}
		}
		return count >= n
	}
}

func matches(re *regexp.Regexp) func(Value) bool {
	return func(v Value) bool { return re.MatchString(v.Text) }
}

func tag(t string) func(Value) bool {
	return func(v Value) bool { return validate.Var(v.Text, t) == nil }
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

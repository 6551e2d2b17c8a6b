package widgets

import (
	"sync"

	"ulift/internal/models"
	"ulift/internal/validation"
)

// Form is a group of fields plus the page banner. It is safe for concurrent use.
type Form struct {
	mu          sync.RWMutex
	fields      []*Field
	byName      map[string]*Field
	banner      string
	showBanner  bool
	submitLabel string
}

// NewForm groups fields in display order.
func NewForm(submitLabel string, fields ...*Field) *Form {
	f := &Form{
		fields:      fields,
		byName:      make(map[string]*Field, len(fields)),
		submitLabel: submitLabel,
	}
	for _, fld := range fields {
		f.byName[fld.Name] = fld
	}
	return f
}

// NewRegistrationForm builds the uLift sign-up page widgets.
func NewRegistrationForm() *Form {
	campus := make([]Option, len(models.Campuses))
	for i, c := range models.Campuses {
		campus[i] = Option{Value: c.Value, Label: c.Label}
	}
	return NewForm("Sign up",
		&Field{Name: models.FieldName, Label: "Name", Placeholder: "Type your name", Kind: Text},
		&Field{Name: models.FieldPhone, Label: "Phone", Placeholder: "Type your phone", Kind: Number},
		&Field{Name: models.FieldCNH, Label: "Driver's license photo (CNH)", Kind: File},
		&Field{Name: models.FieldPassword, Label: "Password", Placeholder: "Type your password", Kind: Password},
		&Field{Name: models.FieldCampus, Label: "Campus", Kind: Select, Options: campus},
		&Field{Name: models.FieldEmail, Label: "Email", Placeholder: "Type your email", Kind: Email},
		&Field{Name: models.FieldCPF, Label: "CPF", Placeholder: "Type your CPF", Kind: Text},
		&Field{Name: models.FieldRA, Label: "Student ID photo (RA)", Kind: File},
		&Field{Name: models.FieldPasswordConfirm, Label: "Confirm password", Placeholder: "Type your password again", Kind: Password},
	)
}

// NewChatLoginForm builds the single-field chat login form.
func NewChatLoginForm() *Form {
	return NewForm("Enter",
		&Field{Name: models.FieldName, Label: "Name", Placeholder: "Type your name", Kind: Text},
	)
}

// Field returns the named field, or nil.
func (f *Form) Field(name string) *Field {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.byName[name]
}

// Fill copies the text values of a snapshot into the fields.
func (f *Form) Fill(form *models.RegistrationForm) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fld := range f.fields {
		if fld.Kind == File {
			continue
		}
		fld.Value = form.Value(fld.Name)
	}
}

// SetFieldErrors replaces every displayed field error.
func (f *Form) SetFieldErrors(errs validation.FieldErrors) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fld := range f.fields {
		fld.SetError(errs[fld.Name])
	}
}

// ClearFieldErrors removes every field error.
func (f *Form) ClearFieldErrors() {
	f.SetFieldErrors(nil)
}

// ClearValues empties the named fields, or all of them when none are named.
func (f *Form) ClearValues(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(names) == 0 {
		for _, fld := range f.fields {
			fld.Reset()
		}
		return
	}
	for _, n := range names {
		if fld, ok := f.byName[n]; ok {
			fld.Reset()
		}
	}
}

// ShowBanner displays a page-level message.
func (f *Form) ShowBanner(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banner, f.showBanner = msg, true
}

// HideBanner removes the page-level message.
func (f *Form) HideBanner() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banner, f.showBanner = "", false
}

// Errors returns the displayed field errors.
func (f *Form) Errors() validation.FieldErrors {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out validation.FieldErrors
	for _, fld := range f.fields {
		if fld.HasError() {
			if out == nil {
				out = make(validation.FieldErrors)
			}
			out[fld.Name] = fld.Error
		}
	}
	return out
}

// View is an immutable copy of the form used for rendering.
type View struct {
	Fields      []*Field
	Banner      string
	ShowBanner  bool
	SubmitLabel string
}

// Snapshot copies the form state for a template.
func (f *Form) Snapshot() View {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v := View{
		Fields:      make([]*Field, len(f.fields)),
		Banner:      f.banner,
		ShowBanner:  f.showBanner,
		SubmitLabel: f.submitLabel,
	}
	for i, fld := range f.fields {
		cp := *fld
		v.Fields[i] = &cp
	}
	return v
}

// Package widgets models the labelled inputs of a page: value, error text and
// options for selects. Templates render them; the pipeline drives them through Form.
package widgets

// Kind is the HTML input kind of a field.
type Kind string

const (
	Text     Kind = "text"
	Number   Kind = "number"
	Password Kind = "password"
	Email    Kind = "email"
	Select   Kind = "select"
	File     Kind = "file"
)

// Option is one choice of a select field.
type Option struct {
	Value string
	Label string
}

// Field is one labelled control bound to a named form field.
type Field struct {
	Name        string
	Label       string
	Placeholder string
	Kind        Kind
	Options     []Option
	Value       string
	Error       string
}

// SetError shows msg under the field.
func (f *Field) SetError(msg string) { f.Error = msg }

// ClearError removes the error text.
func (f *Field) ClearError() { f.Error = "" }

// Reset empties the displayed value.
func (f *Field) Reset() { f.Value = "" }

// HasError reports whether an error is displayed.
func (f *Field) HasError() bool { return f.Error != "" }

// Selected reports whether opt is the current value of a select.
func (f *Field) Selected(opt Option) bool { return f.Value == opt.Value }

// IsSelect, IsFile and friends let templates branch without string compares.
func (f *Field) IsSelect() bool { return f.Kind == Select }

func (f *Field) IsFile() bool { return f.Kind == File }

// KeepsValue reports whether the value is echoed back when the page re-renders.
// Browsers never prefill file inputs and passwords are not sent back.
func (f *Field) KeepsValue() bool { return f.Kind != File && f.Kind != Password }

package models

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"
)

// Registration form field names, as sent to the users API.
const (
	FieldName            = "name"
	FieldPhone           = "phone"
	FieldCNH             = "cnh"
	FieldCampus          = "campus"
	FieldEmail           = "email"
	FieldCPF             = "cpf"
	FieldRA              = "ra"
	FieldPassword        = "password"
	FieldPasswordConfirm = "passwordConfirm"
)

// FieldOrder is the order fields are validated and packaged in.
var FieldOrder = []string{
	FieldName,
	FieldPhone,
	FieldCNH,
	FieldCampus,
	FieldEmail,
	FieldCPF,
	FieldRA,
	FieldPassword,
	FieldPasswordConfirm,
}

// IsFileField reports whether the field carries an upload instead of text.
func IsFileField(field string) bool {
	return field == FieldCNH || field == FieldRA
}

// Upload is a file picked in the form, read fully into memory at snapshot time.
type Upload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Present reports whether a file was actually selected.
func (u *Upload) Present() bool {
	return u != nil && (u.Filename != "" || len(u.Data) > 0)
}

// ErrUploadTooLarge is returned when a picked file exceeds the configured limit.
type ErrUploadTooLarge struct {
	Field string
	Limit int64
}

func (e *ErrUploadTooLarge) Error() string {
	return fmt.Sprintf("%s: file larger than %d bytes", e.Field, e.Limit)
}

// ReadUpload copies a multipart file into an Upload. limit <= 0 disables the size check.
func ReadUpload(field string, fh *multipart.FileHeader, limit int64) (*Upload, error) {
	if fh == nil {
		return nil, nil
	}
	if limit > 0 && fh.Size > limit {
		return nil, &ErrUploadTooLarge{Field: field, Limit: limit}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()
	return NewUpload(field, fh.Filename, fh.Header.Get("Content-Type"), f, limit)
}

// NewUpload reads r fully into an Upload, failing once more than limit bytes
// arrive. limit <= 0 disables the check.
func NewUpload(field, filename, contentType string, r io.Reader, limit int64) (*Upload, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &ErrUploadTooLarge{Field: field, Limit: limit}
	}
	return &Upload{Filename: filename, ContentType: contentType, Data: data}, nil
}

// RegistrationForm is one snapshot of the registration page.
type RegistrationForm struct {
	Name            string  `json:"name"`
	Phone           string  `json:"phone"`
	CNH             *Upload `json:"cnh,omitempty"`
	Campus          string  `json:"campus"`
	Email           string  `json:"email"`
	CPF             string  `json:"cpf"`
	RA              *Upload `json:"ra,omitempty"`
	Password        string  `json:"-"`
	PasswordConfirm string  `json:"-"`
}

// Value returns the raw text value of a field. File fields return their filename.
func (f *RegistrationForm) Value(field string) string {
	switch field {
	case FieldName:
		return f.Name
	case FieldPhone:
		return f.Phone
	case FieldCampus:
		return f.Campus
	case FieldEmail:
		return f.Email
	case FieldCPF:
		return f.CPF
	case FieldPassword:
		return f.Password
	case FieldPasswordConfirm:
		return f.PasswordConfirm
	case FieldCNH:
		if f.CNH.Present() {
			return f.CNH.Filename
		}
	case FieldRA:
		if f.RA.Present() {
			return f.RA.Filename
		}
	}
	return ""
}

// File returns the upload of a file field, or nil.
func (f *RegistrationForm) File(field string) *Upload {
	switch field {
	case FieldCNH:
		return f.CNH
	case FieldRA:
		return f.RA
	}
	return nil
}

// Set assigns a text value by field name. Unknown and file fields are ignored.
func (f *RegistrationForm) Set(field, value string) {
	switch field {
	case FieldName:
		f.Name = value
	case FieldPhone:
		f.Phone = value
	case FieldCampus:
		f.Campus = value
	case FieldEmail:
		f.Email = value
	case FieldCPF:
		f.CPF = value
	case FieldPassword:
		f.Password = value
	case FieldPasswordConfirm:
		f.PasswordConfirm = value
	}
}

// FormFromRequest snapshots a parsed multipart form. Text values are trimmed of
// surrounding whitespace except passwords, which are kept verbatim.
func FormFromRequest(mf *multipart.Form, uploadLimit int64) (*RegistrationForm, error) {
	form := &RegistrationForm{}
	if mf == nil {
		return form, nil
	}
	for _, field := range FieldOrder {
		if IsFileField(field) {
			continue
		}
		vals := mf.Value[field]
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		if field != FieldPassword && field != FieldPasswordConfirm {
			v = strings.TrimSpace(v)
		}
		form.Set(field, v)
	}
	var err error
	if form.CNH, err = readFirst(mf, FieldCNH, uploadLimit); err != nil {
		return nil, err
	}
	if form.RA, err = readFirst(mf, FieldRA, uploadLimit); err != nil {
		return nil, err
	}
	return form, nil
}

func readFirst(mf *multipart.Form, field string, limit int64) (*Upload, error) {
	fhs := mf.File[field]
	if len(fhs) == 0 {
		return nil, nil
	}
	u, err := ReadUpload(field, fhs[0], limit)
	if err != nil {
		return nil, err
	}
	if !u.Present() {
		return nil, nil
	}
	return u, nil
}

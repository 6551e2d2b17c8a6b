package pipeline

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"ulift/internal/client"
	"ulift/internal/models"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Encode packages an accepted form as multipart/form-data. Text fields are
// written in models.FieldOrder; uploads become file parts and an absent
// optional upload is left out.
func Encode(form *models.RegistrationForm) (*client.Payload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range models.FieldOrder {
		if !models.IsFileField(field) {
			if err := w.WriteField(field, form.Value(field)); err != nil {
				return nil, fmt.Errorf("write %s: %w", field, err)
			}
			continue
		}
		u := form.File(field)
		if !u.Present() {
			continue
		}
		if err := writeFile(w, field, u); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return &client.Payload{Body: buf.Bytes(), ContentType: w.FormDataContentType()}, nil
}

func writeFile(w *multipart.Writer, field string, u *models.Upload) error {
	ct := u.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	name := u.Filename
	if name == "" {
		name = field
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(name)))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := part.Write(u.Data); err != nil {
		return fmt.Errorf("write %s: %w", field, err)
	}
	return nil
}

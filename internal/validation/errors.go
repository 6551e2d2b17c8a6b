package validation

import (
	"sort"
	"strings"
)

// FieldErrors maps a field name to the one message displayed under it.
// It doubles as the structured error carried by failures that can be mapped
// back onto the form.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Empty reports whether no field failed.
func (e FieldErrors) Empty() bool { return len(e) == 0 }

// FieldError is one entry of a structured failure list, as returned by the users API.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FromList builds FieldErrors from a list. The first message for a field wins.
func FromList(list []FieldError) FieldErrors {
	if len(list) == 0 {
		return nil
	}
	errs := make(FieldErrors, len(list))
	for _, fe := range list {
		if fe.Field == "" {
			continue
		}
		if _, ok := errs[fe.Field]; !ok {
			errs[fe.Field] = fe.Message
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

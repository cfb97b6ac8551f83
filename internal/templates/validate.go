package templates

import (
	"encoding/json"
	"errors"
	"maps"
	"math"
	"net/mail"
	"net/url"
	"slices"
	"time"
)

// Type is the declared type of a template variable.
type Type string

const (
	TypeString  Type = "string"
	TypeURL     Type = "url"
	TypeInteger Type = "integer"
	TypeDate    Type = "date"
	TypeEmail   Type = "email"
	TypeBoolean Type = "boolean"
)

func (t Type) valid() bool {
	switch t {
	case TypeString, TypeURL, TypeInteger, TypeDate, TypeEmail, TypeBoolean:
		return true
	}
	return false
}

// Validate checks vars against the template contract and returns the first
// problem in field name order, or nil. Variables not declared in the contract
// are passed through unchecked.
func Validate(t Template, vars map[string]any) error {
	if errs := check(t, vars, true); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateAll is like Validate but reports every problem.
func ValidateAll(t Template, vars map[string]any) error {
	return errors.Join(check(t, vars, false)...)
}

func check(t Template, vars map[string]any, first bool) []error {
	var errs []error
	for _, field := range slices.Sorted(maps.Keys(t.Variables)) {
		v := t.Variables[field]
		value, present := vars[field]

		if !present || value == nil || value == "" {
			if v.Required {
				errs = append(errs, &MissingRequiredError{Event: t.Event, Field: field})
			}
		} else if !v.Type.accepts(value) {
			errs = append(errs, &TypeMismatchError{Event: t.Event, Field: field, Expected: v.Type, Value: value})
		}

		if first && len(errs) > 0 {
			return errs
		}
	}
	return errs
}

func (t Type) accepts(value any) bool {
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeURL:
		s, ok := value.(string)
		return ok && isURL(s)
	case TypeInteger:
		return isInteger(value)
	case TypeDate:
		return isDate(value)
	case TypeEmail:
		s, ok := value.(string)
		return ok && isEmail(s)
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	}
	return false
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// isInteger accepts whole floats because variables that went through a JSON
// round trip carry numbers as float64.
func isInteger(value any) bool {
	switch n := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0)
	case float32:
		f := float64(n)
		return f == math.Trunc(f) && !math.IsInf(f, 0)
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

func isDate(value any) bool {
	switch d := value.(type) {
	case time.Time:
		return !d.IsZero()
	case string:
		if _, err := time.Parse(time.RFC3339, d); err == nil {
			return true
		}
		_, err := time.Parse(time.DateOnly, d)
		return err == nil
	}
	return false
}

// Package errors provides an error list used to report warnings and multiple
// failures of a migration.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

func New(text string) error {
	return errors.New(text)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Errors is a list of errors.
type Errors []error

// Error formats the list by separating each message with a newline. Each
// produced line, including lines within messages, is prefixed with a tab.
func (errs Errors) Error() string {
	switch len(errs) {
	case 0:
		return "no errors"
	case 1:
		return errs[0].Error()
	default:
		var buf strings.Builder
		fmt.Fprintf(&buf, "%d errors:", len(errs))
		for _, err := range errs {
			buf.WriteString("\n\t")
			buf.WriteString(strings.ReplaceAll(err.Error(), "\n", "\n\t"))
		}
		return buf.String()
	}
}

// Unwrap allows errors.Is and errors.As to inspect each error of the list.
func (errs Errors) Unwrap() []error {
	return errs
}

// Append returns errs with each err appended to it. Arguments that are nil are
// skipped.
func (errs Errors) Append(err ...error) Errors {
	for _, err := range err {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Appendf appends an error with a formatted message.
func (errs Errors) Appendf(format string, args ...interface{}) Errors {
	return append(errs, fmt.Errorf(format, args...))
}

// Return prepares errs to be returned by a function by returning nil if errs is
// empty.
func (errs Errors) Return() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Union receives a number of errors and combines them into one Errors. Any errs
// that are Errors are concatenated directly. Returns nil if all errs are nil or
// empty.
func Union(errs ...error) error {
	var e Errors
	for _, err := range errs {
		switch err := err.(type) {
		case nil:
			continue
		case Errors:
			e = e.Append(err...)
		default:
			e = append(e, err)
		}
	}
	return e.Return()
}

// Prefix returns err with each contained error prefixed by a label, keeping
// the original errors reachable through Unwrap. Returns nil if err is nil.
func Prefix(label string, err error) error {
	switch err := err.(type) {
	case nil:
		return nil
	case Errors:
		var e Errors
		for _, err := range err {
			e = e.Append(Prefix(label, err))
		}
		return e.Return()
	default:
		return fmt.Errorf("%s: %w", label, err)
	}
}

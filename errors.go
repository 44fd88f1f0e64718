package tiles

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatError indicates malformed or self-contradictory table data, such as a
// BATCH_ID without a BATCH_LENGTH, a column that is neither a binary body
// reference nor an array, or a type that cannot back an accessor.
type FormatError struct {
	Message string

	Cause error
}

func (err *FormatError) Error() string {
	if err.Cause == nil {
		return "format error: " + err.Message
	}
	if err.Message == "" {
		return "format error: " + err.Cause.Error()
	}
	return "format error: " + err.Message + ": " + err.Cause.Error()
}

func (err *FormatError) Unwrap() error {
	return err.Cause
}

// Formatf returns a FormatError with a formatted message.
func Formatf(format string, args ...interface{}) *FormatError {
	return &FormatError{Message: fmt.Sprintf(format, args...)}
}

// InvalidArgumentError indicates that arguments of mismatched shape were passed
// to an operation, such as vectors of different lengths.
type InvalidArgumentError struct {
	Message string
}

func (err *InvalidArgumentError) Error() string {
	return "invalid argument: " + err.Message
}

// InvalidArgumentf returns an InvalidArgumentError with a formatted message.
func InvalidArgumentf(format string, args ...interface{}) *InvalidArgumentError {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

// OutOfRangeError indicates a decode request that addresses bytes beyond the
// end of a buffer.
type OutOfRangeError struct {
	// Offset is the byte offset of the request.
	Offset int
	// Length is the number of bytes requested.
	Length int
	// Size is the size of the buffer.
	Size int
}

func (err *OutOfRangeError) Error() string {
	var s strings.Builder
	s.WriteString("out of range: ")
	s.Write(strconv.AppendInt(nil, int64(err.Length), 10))
	s.WriteString(" bytes at offset ")
	s.Write(strconv.AppendInt(nil, int64(err.Offset), 10))
	s.WriteString(" exceed buffer of ")
	s.Write(strconv.AppendInt(nil, int64(err.Size), 10))
	s.WriteString(" bytes")
	return s.String()
}

// CheckRange returns an OutOfRangeError if length bytes at offset do not fit
// within a buffer of size bytes.
func CheckRange(offset, length, size int) error {
	if offset < 0 || length < 0 || offset > size || length > size-offset {
		return &OutOfRangeError{Offset: offset, Length: length, Size: size}
	}
	return nil
}

// MetadataError indicates a cross-reference failure between structured
// metadata objects, such as a property table whose class is missing from the
// schema.
type MetadataError struct {
	Message string
}

func (err *MetadataError) Error() string {
	return "metadata error: " + err.Message
}

// Metadataf returns a MetadataError with a formatted message.
func Metadataf(format string, args ...interface{}) *MetadataError {
	return &MetadataError{Message: fmt.Sprintf(format, args...)}
}

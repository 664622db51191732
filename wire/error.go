// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrTruncatedInput is returned when fewer bytes are available than a
	// length prefix or fixed-size field declares.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrChecksumMismatch is returned when a message payload does not
	// hash to the checksum in its header. The payload has been consumed,
	// so the stream remains aligned on the next message.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")

	// ErrUnknownMessage is returned when a message with an unsupported
	// command was read. The payload has been discarded.
	ErrUnknownMessage = errors.New("received unknown message")
)

// MessageError describes an issue with a message.
// An example of some potential issues are messages from the wrong dash
// network, invalid commands, mismatched checksums, and exceeding max payloads.
//
// This provides a mechanism for the caller to type assert the error to
// differentiate between general io errors such as io.EOF and issues that
// resulted from malformed messages.
type MessageError struct {
	Func        string // Function name
	Description string // Human readable description of the issue
	Err         error  // Optional sentinel the issue is classified by
}

// Error satisfies the error interface and prints human-readable errors.
func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%s: %s", e.Func, e.Description)
	}
	return e.Description
}

// Unwrap returns the sentinel classifying the error, if any.
func (e *MessageError) Unwrap() error {
	return e.Err
}

// messageError creates an error for the given function and description.
func messageError(f string, desc string) *MessageError {
	return &MessageError{Func: f, Description: desc}
}

// classifiedError creates an error for the given function and description
// that also matches the sentinel err through errors.Is.
func classifiedError(f string, err error, desc string) *MessageError {
	return &MessageError{Func: f, Description: desc, Err: err}
}

// truncatedIfEOF converts the EOF conditions produced by a bounded payload
// reader into ErrTruncatedInput so callers can tell short payloads apart
// from connection errors.
func truncatedIfEOF(f string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTruncatedInput) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return classifiedError(f, ErrTruncatedInput, err.Error())
	}
	return err
}

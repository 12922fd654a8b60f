package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks user input that was rejected before any state changed
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotTracked is returned for commands aimed at a channel without a queue
	ErrNotTracked = errors.New("channel is not a queue")

	// ErrWrongChannelKind is returned when a text-only command targets a voice queue or the reverse
	ErrWrongChannelKind = errors.New("wrong channel kind")

	// ErrEmptyQueue is returned when there is nobody to take from a queue
	ErrEmptyQueue = errors.New("queue is empty")

	// ErrChannelNotFound is returned when a channel id no longer resolves
	ErrChannelNotFound = errors.New("channel not found")
)

// InputError carries a message meant for the user who issued a command
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// invalidInput builds an InputError wrapping ErrInvalidInput
func invalidInput(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...), Err: ErrInvalidInput}
}

// inputError builds an InputError wrapping a specific sentinel
func inputError(sentinel error, format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...), Err: sentinel}
}

package command

import (
	"errors"
	"fmt"
)

// ErrorKind classifies validation failures.
type ErrorKind string

const (
	KindUnknownCommand   ErrorKind = "UnknownCommand"
	KindMissingParameter ErrorKind = "MissingParameter"
)

var (
	// ErrUnknownCommand matches any ValidationError of kind UnknownCommand.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingParameter matches any ValidationError of kind MissingParameter.
	ErrMissingParameter = errors.New("missing parameter")
)

// ValidationError is returned for commands outside the vocabulary or with
// absent or mistyped parameters.
type ValidationError struct {
	Kind      ErrorKind `json:"kind"`
	Command   string    `json:"command"`
	Parameter string    `json:"parameter,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindUnknownCommand:
		if e.Reason != "" {
			return fmt.Sprintf("unknown command %q: %s", e.Command, e.Reason)
		}
		return fmt.Sprintf("unknown command: %s", e.Command)
	default:
		msg := fmt.Sprintf("missing parameter %s.%s", e.Command, e.Parameter)
		if e.Reason != "" {
			msg += ": " + e.Reason
		}
		return msg
	}
}

// Is lets errors.Is match the kind sentinels.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrUnknownCommand:
		return e.Kind == KindUnknownCommand
	case ErrMissingParameter:
		return e.Kind == KindMissingParameter
	}
	return false
}

func unknownCommand(name, reason string) *ValidationError {
	return &ValidationError{Kind: KindUnknownCommand, Command: name, Reason: reason}
}

func missingParameter(name Name, param, reason string) *ValidationError {
	return &ValidationError{Kind: KindMissingParameter, Command: string(name), Parameter: param, Reason: reason}
}

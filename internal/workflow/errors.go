package workflow

import "fmt"

// Kind classifies workflow errors for the chat-facing reply.
type Kind int

const (
	// KindValidation means the user's input was malformed or incomplete.
	KindValidation Kind = iota
	// KindAuthorization means the requester may not perform the operation.
	KindAuthorization
	// KindStateConflict means the batch is not in a state that allows the
	// operation (e.g. no live batch, already discussing).
	KindStateConflict
	// KindStorage wraps a database failure.
	KindStorage
)

// Error is a classified workflow error. The message is written for the
// chat user; Err carries the underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow: %s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the text to show in chat.
func (e *Error) UserMessage() string { return e.Msg }

func validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func authorizationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindStateConflict, Msg: fmt.Sprintf(format, args...)}
}

func storage(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Msg: msg, Err: err}
}

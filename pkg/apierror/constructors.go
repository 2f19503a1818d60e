package apierror

// Constructor helpers mirror error_handling.py's per-kind exception
// subclasses, but as plain functions returning *Error rather than a
// class hierarchy.

func Validation(message string, err error) *Error {
	return New(KindValidation, message, err)
}

func Permission(message string, err error) *Error {
	return New(KindPermission, message, err)
}

func Deadline(message string, err error) *Error {
	return New(KindDeadline, message, err)
}

func TransientExternal(message string, err error) *Error {
	return New(KindTransientExternal, message, err)
}

func DoomLoop(message string, err error) *Error {
	return New(KindDoomLoop, message, err)
}

func InvalidDAG(message string, err error) *Error {
	return New(KindInvalidDAG, message, err)
}

func Parse(message string, err error) *Error {
	return New(KindParse, message, err)
}

func Internal(message string, err error) *Error {
	return New(KindInternal, message, err)
}

// WithRequestID attaches a request id, returning e for chaining.
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

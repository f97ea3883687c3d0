package prepare

import "fmt"

// messageError carries a user facing message for a sentinel kind. Error
// returns the message alone while errors.Is still matches the kind.
type messageError struct {
	kind error
	msg  string
}

func (e *messageError) Error() string { return e.msg }
func (e *messageError) Unwrap() error { return e.kind }

func errorf(kind error, format string, args ...any) error {
	return &messageError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

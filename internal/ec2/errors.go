package ec2

import "fmt"

// messageError is an error whose text is shown to the user as is. It still
// matches its sentinel kind with errors.Is.
type messageError struct {
	kind error
	msg  string
}

func (e *messageError) Error() string { return e.msg }
func (e *messageError) Unwrap() error { return e.kind }

func errorf(kind error, format string, args ...any) error {
	return &messageError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

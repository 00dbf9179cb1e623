package classify

import "fmt"

// ClassificationSchemaError is returned when an oracle response fails schema validation
// after the strict retry.
type ClassificationSchemaError struct {
	Operation string
	Attempts  int
	Message   string
	Cause     error
}

func (e *ClassificationSchemaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: invalid oracle response after %d attempts: %s: %v", e.Operation, e.Attempts, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: invalid oracle response after %d attempts: %s", e.Operation, e.Attempts, e.Message)
}

func (e *ClassificationSchemaError) Unwrap() error {
	return e.Cause
}

package chunking

import "fmt"

// OptionsError reports invalid chunk window parameters
type OptionsError struct {
	Field   string
	Message string
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid chunk options: %s %s", e.Field, e.Message)
}

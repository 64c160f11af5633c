package cerrors

import (
	"errors"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ce *Error
	if !errors.As(err, &ce) {
		return fmt.Sprintf("Error: %s\n", err.Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ce.Message))
	sb.WriteString(fmt.Sprintf("  Kind: %s\n", ce.Kind))
	if ce.Cause != nil {
		sb.WriteString(fmt.Sprintf("  Cause: %s\n", ce.Cause.Error()))
	}
	return sb.String()
}

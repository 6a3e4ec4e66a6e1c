package diploma

import (
	"fmt"
	"time"
)

// VersionLayout is the only accepted format for consolidated version dates.
const VersionLayout = time.DateOnly

// ValidateVersion accepts an empty value (current text) or a YYYY-MM-DD calendar date
// and returns it unchanged.
func ValidateVersion(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	_, err := time.Parse(VersionLayout, value)
	if err != nil {
		return "", &ValidationError{
			Field:  "version",
			Value:  value,
			Reason: fmt.Sprintf("expected a %s date", "YYYY-MM-DD"),
		}
	}
	return value, nil
}

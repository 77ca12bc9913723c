package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// JSON size limits (in bytes).
const (
	MaxJSONSize   = 1 * 1024 * 1024 // 1MB - maximum JSON payload size
	MaxDataSize   = 256 * 1024      // 256KB - data sent to a single app
	MaxScriptSize = 512 * 1024      // 512KB - script submitted for execution
)

// String length limits.
const (
	MaxAppNameLength = 128
	MaxURLLength     = 2048
	MaxKeyLength     = 256
)

// Regular expressions for validation.
var (
	// appNameStrip removes leading digits and anything outside [\w-].
	appNameStrip = regexp.MustCompile(`(^\d+)|([^\w-])`)
	// TagNamePattern matches custom element names the host accepts.
	TagNamePattern = regexp.MustCompile(`^micro-app(-\S+)?$`)
	// GlobalKeyPattern allows identifier-like property names.
	GlobalKeyPattern = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// JSONSizeValidator validates JSON size limits.
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size.
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// DefaultJSONValidator returns a validator with the default 1MB limit.
func DefaultJSONValidator() *JSONSizeValidator {
	return NewJSONSizeValidator(MaxJSONSize)
}

// ValidateSize checks if the data size is within limits.
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	size := len(data)
	if size > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateJSON validates both size and JSON structure.
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	if err := v.ValidateSize(data); err != nil {
		return err
	}

	if !sonic.Valid(data) {
		return fmt.Errorf("invalid JSON")
	}

	return nil
}

// ValidateData checks that a data payload for an app is a JSON object within limits.
func ValidateData(data map[string]interface{}) error {
	encoded, err := sonic.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return NewJSONSizeValidator(MaxDataSize).ValidateSize(encoded)
}

// ValidateString validates a string field with length and content checks.
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// FormatAppName normalizes an app name: leading digits and characters
// outside [A-Za-z0-9_-] are dropped.
func FormatAppName(name string) string {
	return appNameStrip.ReplaceAllString(strings.TrimSpace(name), "")
}

// ValidateAppName formats name and rejects it when nothing usable remains.
func ValidateAppName(name string) (string, error) {
	if err := ValidateString(name, "name", 1, MaxAppNameLength, true); err != nil {
		return "", err
	}
	formatted := FormatAppName(name)
	if formatted == "" {
		return "", fmt.Errorf("name %q is invalid after formatting", name)
	}
	return formatted, nil
}

// ValidateTagName checks a custom element tag name.
func ValidateTagName(tagName string) error {
	if !TagNamePattern.MatchString(tagName) {
		return fmt.Errorf("%s is invalid tagName", tagName)
	}
	return nil
}

// ValidateGlobalKey checks a global property name read through the API.
func ValidateGlobalKey(key string) error {
	if err := ValidateString(key, "key", 1, MaxKeyLength, true); err != nil {
		return err
	}
	if !GlobalKeyPattern.MatchString(key) {
		return fmt.Errorf("key %q is not a valid identifier", key)
	}
	return nil
}

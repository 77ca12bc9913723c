package page

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidURL   = errors.New("invalid page url")
	ErrCrossOrigin  = errors.New("url is not same-origin with the page")
	ErrNotAnElement = errors.New("value is not a page element")
	ErrClosed       = errors.New("page is closed")
)

// Config defines page configuration.
type Config struct {
	URL           string        // Initial page URL
	ScriptTimeout time.Duration // Maximum duration of a single RunScript
	Nested        bool          // Page runs inside an outer window
	Logger        *zap.Logger
	Now           func() time.Time // Clock for timers; defaults to time.Now
}

// LogEntry represents console output.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	App     string    `json:"app,omitempty"`
	Time    time.Time `json:"time"`
}

// Request is a network call a script attempted. The page never performs it.
type Request struct {
	Kind   string    `json:"kind"` // fetch, xhr, eventsource
	Method string    `json:"method"`
	URL    string    `json:"url"`
	Time   time.Time `json:"time"`
}

// DefaultConfig returns the default page configuration.
func DefaultConfig() Config {
	return Config{
		URL:           "http://localhost:3000/",
		ScriptTimeout: 5 * time.Second,
	}
}

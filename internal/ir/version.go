package ir

// Version constants for persisted formats.
const (
	// FormatVersion is stamped on records and blocks written by this build.
	FormatVersion = "1"

	// Version is the chainvault release version.
	Version = "0.1.0"
)

// Package docerr defines the error types shared by the identifier, merge,
// location and external resolution packages.
//
// Identifier and merge errors abort the current operation. Location and
// manifest errors are usually logged and degraded into a "not found" result
// by the caller; they are still exposed as types so that strict call sites
// (MustResolve, the CLI) can report them.
//
//	id, err := dri.Parse(s)
//	if errors.Is(err, docerr.ErrMalformedIdentifier) {
//	    // skip the link
//	}
package docerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrMalformedIdentifier indicates an ID string could not be decoded.
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrIllegalState indicates two nodes with the same ID could not be merged.
	ErrIllegalState = errors.New("illegal merge state")

	// ErrLocationNotFound indicates no local or external location exists for an ID.
	ErrLocationNotFound = errors.New("location not found")

	// ErrManifest indicates an external manifest could not be fetched or parsed.
	ErrManifest = errors.New("manifest error")

	// ErrConfig indicates an invalid configuration value.
	ErrConfig = errors.New("configuration error")
)

// MalformedIdentifierError is returned when decoding an ID or callable fails.
type MalformedIdentifierError struct {
	// Input is the string that failed to decode
	Input string
	// Reason describes which part of the grammar was violated
	Reason string
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("malformed identifier %q: %s", e.Input, e.Reason)
}

// Is reports whether target matches this error type.
func (e *MalformedIdentifierError) Is(target error) bool {
	return target == ErrMalformedIdentifier
}

// IllegalStateError is returned when same-ID nodes disagree on their kind.
type IllegalStateError struct {
	// Key is the canonical ID key shared by the conflicting nodes
	Key string
	// Left and Right name the kinds that were found
	Left  string
	Right string
	// Message provides additional context
	Message string
}

func (e *IllegalStateError) Error() string {
	msg := fmt.Sprintf("cannot merge %s with %s", e.Left, e.Right)
	if e.Key != "" {
		msg += " for " + e.Key
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is reports whether target matches this error type.
func (e *IllegalStateError) Is(target error) bool {
	return target == ErrIllegalState
}

// LocationNotFoundError is returned by strict resolution when an ID has no
// page in the local tree and no external provider knows it.
type LocationNotFoundError struct {
	ID        string
	Platforms []string
}

func (e *LocationNotFoundError) Error() string {
	if len(e.Platforms) == 0 {
		return fmt.Sprintf("no location for %s", e.ID)
	}
	return fmt.Sprintf("no location for %s on %v", e.ID, e.Platforms)
}

// Is reports whether target matches this error type.
func (e *LocationNotFoundError) Is(target error) bool {
	return target == ErrLocationNotFound
}

// ManifestError describes a failed external manifest load.
type ManifestError struct {
	// URL is the manifest source
	URL string
	// Message describes the failure
	Message string
	// Cause is the underlying error, if any
	Cause error
}

func (e *ManifestError) Error() string {
	msg := "manifest " + e.URL
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chaining.
func (e *ManifestError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error type.
func (e *ManifestError) Is(target error) bool {
	return target == ErrManifest
}

// ConfigError represents an invalid configuration option.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

func (e *ConfigError) Error() string {
	msg := "invalid " + e.Option
	if e.Value != nil {
		msg += fmt.Sprintf(" %v", e.Value)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is reports whether target matches this error type.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// Package errors provides common domain error types for the docchat CLI.
//
// This package defines sentinel errors for the transport and protocol
// conditions the streaming chat client can hit, so callers can use
// consistent errors.Is() checks instead of string matching.
//
// Usage:
//
//	import dcerrors "github.com/otherjamesbrown/docchat-cli/pkg/errors"
//
//	// Return a domain error
//	return dcerrors.ErrTransportNotReady
//
//	// Check for domain errors
//	if dcerrors.IsTransportNotReady(err) {
//	    // fall back to the non-streaming chat service
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for transport and document conditions.
var (
	// ErrTransportNotReady indicates a send was attempted with no path to an
	// open connection.
	ErrTransportNotReady = errors.New("transport not ready")

	// ErrRemoteStream indicates the server emitted an explicit error frame.
	ErrRemoteStream = errors.New("remote stream error")

	// ErrMalformedFrame indicates a frame failed to parse as the expected
	// protocol shape.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrTransportClosed indicates the connection dropped mid-stream with no
	// terminal or error frame.
	ErrTransportClosed = errors.New("transport closed unexpectedly")

	// ErrDocumentNotFound indicates the requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentNotProcessed indicates the document has not finished
	// processing and cannot be chatted with yet.
	ErrDocumentNotProcessed = errors.New("document not yet processed")
)

// IsTransportNotReady reports whether any error in err's chain is ErrTransportNotReady.
func IsTransportNotReady(err error) bool {
	return errors.Is(err, ErrTransportNotReady)
}

// IsRemoteStream reports whether any error in err's chain is ErrRemoteStream.
func IsRemoteStream(err error) bool {
	return errors.Is(err, ErrRemoteStream)
}

// IsMalformedFrame reports whether any error in err's chain is ErrMalformedFrame.
func IsMalformedFrame(err error) bool {
	return errors.Is(err, ErrMalformedFrame)
}

// IsTransportClosed reports whether any error in err's chain is ErrTransportClosed.
func IsTransportClosed(err error) bool {
	return errors.Is(err, ErrTransportClosed)
}

// IsDocumentNotFound reports whether any error in err's chain is ErrDocumentNotFound.
func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsDocumentNotProcessed reports whether any error in err's chain is ErrDocumentNotProcessed.
func IsDocumentNotProcessed(err error) bool {
	return errors.Is(err, ErrDocumentNotProcessed)
}

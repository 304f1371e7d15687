package errors

// ErrorCode is a stable machine-readable identifier for a failure class.
type ErrorCode string

// Error codes for transport, protocol, and polling failures.
const (
	CodeTransportNotReady ErrorCode = "TRANSPORT_NOT_READY"
	CodeRemoteStream      ErrorCode = "REMOTE_STREAM_ERROR"
	CodeMalformedFrame    ErrorCode = "MALFORMED_FRAME"
	CodeTransportClosed   ErrorCode = "TRANSPORT_CLOSED"
	CodeDocumentNotFound  ErrorCode = "DOCUMENT_NOT_FOUND"
	CodeDocumentPending   ErrorCode = "DOCUMENT_NOT_PROCESSED"
	CodePollFailed        ErrorCode = "POLL_FAILED"
)

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	CodeTransportNotReady: {
		Code:            CodeTransportNotReady,
		Retryable:       true,
		Description:     "Send attempted with no path to an open connection",
		SuggestedAction: "Retry the message; the client reconnects on the next send",
	},
	CodeRemoteStream: {
		Code:            CodeRemoteStream,
		Retryable:       true,
		Description:     "Server emitted an error frame and the exchange was terminated",
		SuggestedAction: "Check backend health: docchat status",
	},
	CodeMalformedFrame: {
		Code:            CodeMalformedFrame,
		Retryable:       false,
		Description:     "A frame failed to parse as the expected protocol shape (dropped)",
		SuggestedAction: "Verify client and backend versions agree on the wire protocol",
	},
	CodeTransportClosed: {
		Code:            CodeTransportClosed,
		Retryable:       true,
		Description:     "Connection dropped mid-stream with no terminal or error frame",
		SuggestedAction: "Re-send the question; the in-flight answer was abandoned",
	},
	CodeDocumentNotFound: {
		Code:            CodeDocumentNotFound,
		Retryable:       false,
		Description:     "The requested document does not exist",
		SuggestedAction: "List available documents: docchat documents list",
	},
	CodeDocumentPending: {
		Code:            CodeDocumentPending,
		Retryable:       true,
		Description:     "The document has not finished processing",
		SuggestedAction: "Wait for processing: docchat documents watch",
	},
	CodePollFailed: {
		Code:            CodePollFailed,
		Retryable:       true,
		Description:     "A status poll cycle failed (skipped, polling continues)",
		SuggestedAction: "Transient; check backend health if it persists",
	},
}

// CodeFor maps a sentinel error to its error code.
// Returns an empty code for errors outside the domain taxonomy.
func CodeFor(err error) ErrorCode {
	switch {
	case IsTransportNotReady(err):
		return CodeTransportNotReady
	case IsRemoteStream(err):
		return CodeRemoteStream
	case IsMalformedFrame(err):
		return CodeMalformedFrame
	case IsTransportClosed(err):
		return CodeTransportClosed
	case IsDocumentNotFound(err):
		return CodeDocumentNotFound
	case IsDocumentNotProcessed(err):
		return CodeDocumentPending
	default:
		return ""
	}
}

// IsRetryable reports whether the failure class behind err is worth retrying.
func IsRetryable(err error) bool {
	code := CodeFor(err)
	if code == "" {
		return false
	}
	return ErrorCodeRegistry[code].Retryable
}

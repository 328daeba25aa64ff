package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. The stdio protocol and the HTTP API never send raw errors;
// they send the mapped message, and the technical error is logged.
//
// # Document Errors (JSON001-JSON099)
//
//	JSON002 - Preview failed: The start of the document could not be previewed
//	          Action: Wait for the first page of the full pass
//	          Patterns: "preview failed"
//
//	JSON001 - Invalid document: The document is not valid JSON
//	          Action: Check the file for syntax errors near the reported position
//	          Patterns: "invalid document"
//
// JSON002 is listed first because a failed preview wraps the parse error.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Too large: "file too large", "request body too large"
//	FILE002 - Missing: "no such file", "file does not exist", "not a regular file"
//	FILE003 - Empty: "empty file"
//	FILE004 - Compression: "unsupported compression", "decompress"
//	FILE005 - Path not allowed: "path not allowed"
//	FILE006 - No file: "no file provided"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Not found: "document not found"
//	SES002 - Too many documents: "too many open documents"
//
// # Ingest Errors (ING001-ING099)
//
//	ING001 - Busy: "too many concurrent ingests"
//	ING002 - Cancelled: "ingest cancelled"
//
// # Request Errors (PAG, SRC, REQ)
//
//	PAG001 - Invalid offset: "invalid offset"
//	SRC001 - Empty term: "empty search term"
//	REQ001 - Cancelled: "context canceled"
//	REQ002 - Timeout: "context deadline exceeded", "timeout"
//	REQ003 - Malformed request: "invalid request"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the logs for the
// technical error when users report ERR000.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so more specific patterns come first.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIngestCancelled is returned to callers waiting for an ingest that was
// cancelled before it finished.
var ErrIngestCancelled = errors.New("ingest cancelled")

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgTooLarge = UserMessage{
		Message: "Document exceeds the maximum size limit",
		Action:  "Open the file from disk or compress it before uploading",
		Code:    "FILE001",
	}
	msgMissing = UserMessage{
		Message: "Document file not found",
		Action:  "Check the path and that the file still exists",
		Code:    "FILE002",
	}
	msgCompression = UserMessage{
		Message: "The compressed document could not be read",
		Action:  "Check that the file is not truncated and uses gzip, zstd, lz4 or snappy",
		Code:    "FILE004",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try again once more of the document has loaded",
		Code:    "REQ002",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Document Errors (JSON001-JSON002)
	// =========================================================================
	{
		pattern: "preview failed",
		msg: UserMessage{
			Message: "The start of the document could not be previewed",
			Action:  "Wait for the first page of the full document",
			Code:    "JSON002",
		},
	},
	{
		pattern: "invalid document",
		msg: UserMessage{
			Message: "The document is not valid JSON",
			Action:  "Check the file for syntax errors near the reported position",
			Code:    "JSON001",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{pattern: "file too large", msg: msgTooLarge},
	{pattern: "request body too large", msg: msgTooLarge},
	{pattern: "no such file", msg: msgMissing},
	{pattern: "file does not exist", msg: msgMissing},
	{
		pattern: "not a regular file",
		msg: UserMessage{
			Message: "The path does not name a regular file",
			Action:  "Choose a JSON file rather than a directory or device",
			Code:    "FILE002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The document is empty",
			Action:  "Choose a file that contains a JSON document",
			Code:    "FILE003",
		},
	},
	{pattern: "unsupported compression", msg: msgCompression},
	{pattern: "decompress", msg: msgCompression},
	{
		pattern: "path not allowed",
		msg: UserMessage{
			Message: "This server does not open files from that location",
			Action:  "Upload the file instead, or ask an administrator to allow the directory",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No document was provided",
			Action:  "Select a JSON file to open",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Session Errors (SES001-SES002)
	// =========================================================================
	{
		pattern: "document not found",
		msg: UserMessage{
			Message: "Document session not found",
			Action:  "The document may have been closed or expired. Please open it again",
			Code:    "SES001",
		},
	},
	{
		pattern: "too many open documents",
		msg: UserMessage{
			Message: "Too many documents are open",
			Action:  "Close a document you no longer need and try again",
			Code:    "SES002",
		},
	},

	// =========================================================================
	// Ingest Errors (ING001-ING002)
	// =========================================================================
	{
		pattern: "too many concurrent ingests",
		msg: UserMessage{
			Message: "System is busy loading other documents",
			Action:  "Please wait a moment and try again",
			Code:    "ING001",
		},
	},
	{
		pattern: "ingest cancelled",
		msg: UserMessage{
			Message: "Loading was cancelled before the document finished",
			Action:  "Open the document again to search all of it",
			Code:    "ING002",
		},
	},

	// =========================================================================
	// Request Errors (PAG001, SRC001, REQ001-REQ003)
	// =========================================================================
	{
		pattern: "invalid offset",
		msg: UserMessage{
			Message: "Invalid page offset",
			Action:  "Request a page at offset 0 or later",
			Code:    "PAG001",
		},
	},
	{
		pattern: "empty search term",
		msg: UserMessage{
			Message: "Search term is empty",
			Action:  "Type something to search for",
			Code:    "SRC001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{pattern: "context deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request fields and try again",
			Code:    "REQ003",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(fmt.Errorf("%w: offset 12", jsonparse.ErrInvalidDocument))
//	// msg.Code == "JSON001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError. Returns nil if err
// is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

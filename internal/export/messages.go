package export

// messages.go maps technical errors to user-facing messages with support codes.
//
// # Error Codes Reference
//
// Export errors (EXP001-EXP099):
//
//	EXP001 - Unsupported format: the requested format is not csv, excel or pdf
//	EXP002 - Empty input: there are no records to export
//	EXP003 - Invalid request: the export request body could not be decoded
//	EXP004 - System busy: too many exports in progress
//	EXP005 - Request cancelled
//	EXP006 - Request timed out
//
// Document errors (DOC001-DOC099):
//
//	DOC001 - Document rendering failed: neither PDF nor HTML could be produced
//
// Download errors (DL001-DL099):
//
//	DL001 - Delivery failed: the finished file could not be handed to its destination
//
// Report errors (RPT001-RPT099) are produced by errors that carry their own
// message (see UserFacing), for example remote report failures.
//
//	RATE001 - Rate limited
//	ERR000  - Unknown error; check the application logs for the technical error
//
// Typed errors are matched first, then message patterns (case-insensitive,
// first match wins).

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// UserFacing is implemented by errors that know their own user message.
type UserFacing interface {
	UserMessage() UserMessage
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgUnsupportedFormat = UserMessage{
		Message: "This export format is not supported",
		Action:  "Choose CSV, Excel or PDF",
		Code:    "EXP001",
	}
	msgEmptyInput = UserMessage{
		Message: "There is nothing to export",
		Action:  "Adjust your filters so at least one record is included",
		Code:    "EXP002",
	}
	msgDocumentRender = UserMessage{
		Message: "The document could not be generated",
		Action:  "Try exporting as CSV or Excel instead",
		Code:    "DOC001",
	}
	msgDelivery = UserMessage{
		Message: "The export was generated but could not be delivered",
		Action:  "Please try again",
		Code:    "DL001",
	}
)

var errorPatterns = []errorPattern{
	// =========================================================================
	// Request Errors (EXP003-EXP006)
	// =========================================================================
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The export request could not be read",
			Action:  "Send a JSON object with a records array",
			Code:    "EXP003",
		},
	},
	{
		pattern: "too many exports",
		msg: UserMessage{
			Message: "System is busy processing other exports",
			Action:  "Please wait a moment and try again",
			Code:    "EXP004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "EXP005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try exporting fewer records or try again later",
			Code:    "EXP006",
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

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Errors
// implementing UserFacing win, then known export errors, then message
// patterns. Unmatched errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var facing UserFacing
	if errors.As(err, &facing) {
		return facing.UserMessage()
	}

	var unsupported *UnsupportedFormatError
	var render *DocumentRenderError
	var delivery *DeliveryError
	switch {
	case errors.As(err, &unsupported):
		return msgUnsupportedFormat
	case errors.Is(err, ErrEmptyInput):
		return msgEmptyInput
	case errors.As(err, &render):
		return msgDocumentRender
	case errors.As(err, &delivery):
		return msgDelivery
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a display string: "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

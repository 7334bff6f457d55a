package core

// error_messages.go maps technical errors to user-facing messages with codes
// that support staff can look up.
//
// # Codes
//
//	FILE001 - File too large                  (ErrFileTooLarge)
//	FILE002 - Not a readable spreadsheet       (ErrFileFormat)
//	FILE003 - Too many rows                    (ErrTooManyRows)
//	FILE004 - No file provided                 ("no file provided")
//	FILE005 - Empty file                       (ErrEmptyFile)
//
//	VAL001 - Invalid date                      ("invalid date")
//	VAL002 - Invalid number                    ("invalid number")
//	VAL003 - Required field empty              ("required field")
//	VAL004 - Invalid enum value                ("invalid enum")
//	VAL005 - Invalid email                     ("invalid email")
//	VAL006 - Invalid boolean                   ("invalid boolean")
//	VAL007 - Value too long                    ("exceeds max length")
//	VAL010 - Batch failed server validation    (*BatchValidationError)
//
//	IMP001 - Unknown module                    (ErrUnknownModule)
//	IMP002 - Empty batch                       (ErrEmptyBatch)
//	IMP003 - Job not found                     (ErrJobNotFound)
//	IMP004 - Job already finished              (ErrJobTerminal)
//	IMP005 - Import cancelled                  (ErrImportCancelled)
//	IMP006 - Job already claimed               (ErrJobNotClaimable)
//	IMP007 - Server busy                       (ErrBusy)
//
//	DB001 - Duplicate value                    ("duplicate key", "violates unique")
//	DB002 - Missing reference                  ("foreign key")
//	DB003 - Database unreachable               (*InfrastructureError, "connection refused")
//	DB004 - Timeout                            ("timeout", "context deadline exceeded")
//
//	REQ001 - Malformed request                 ("invalid request body")
//
//	ERR000 - Unknown error (fallback)
//
// Typed errors are matched with errors.Is/As before falling back to
// case-insensitive substring patterns, so wrapped errors keep their code.

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

type errorTarget struct {
	target error
	msg    UserMessage
}

// errorTargets are checked with errors.Is in order.
var errorTargets = []errorTarget{
	{ErrFileTooLarge, UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{ErrFileFormat, UserMessage{"File is not a readable spreadsheet", "Save the file as .xlsx and upload it again", "FILE002"}},
	{ErrTooManyRows, UserMessage{"File has too many rows", "Split the rows across several files", "FILE003"}},
	{ErrEmptyFile, UserMessage{"The uploaded file is empty", "Fill in the template and upload it again", "FILE005"}},
	{ErrUnknownModule, UserMessage{"This module does not support imports", "Check the module name", "IMP001"}},
	{ErrEmptyBatch, UserMessage{"There are no valid rows to import", "Fix the errors in your file and upload it again", "IMP002"}},
	{ErrJobNotFound, UserMessage{"Import job not found", "Check the job id", "IMP003"}},
	{ErrJobTerminal, UserMessage{"The import has already finished", "Start a new import if needed", "IMP004"}},
	{ErrImportCancelled, UserMessage{"The import was cancelled", "Start a new import when ready", "IMP005"}},
	{ErrJobNotClaimable, UserMessage{"The import is already being processed", "Wait for the current run to finish", "IMP006"}},
	{ErrBusy, UserMessage{"Too many uploads are being processed", "Please try again in a few moments", "IMP007"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this value already exists", "Remove or change the duplicate row", "DB001"}},
	{"violates unique", UserMessage{"A record with this value already exists", "Remove or change the duplicate row", "DB001"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Create the referenced record first", "DB002"}},
	{"connection refused", UserMessage{"Unable to reach the database", "Please try again in a few moments", "DB003"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Please try again", "DB004"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB004"}},

	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Use a plain decimal number", "VAL002"}},
	{"required field", UserMessage{"Required field is empty", "Fill in every required column", "VAL003"}},
	{"invalid enum", UserMessage{"Value is not in the allowed list", "Use one of the values listed in the template", "VAL004"}},
	{"invalid email", UserMessage{"Invalid email address", "Use the form name@example.com", "VAL005"}},
	{"invalid boolean", UserMessage{"Invalid yes/no value", "Use true/false or yes/no", "VAL006"}},
	{"exceeds max length", UserMessage{"Value is too long", "Shorten the value", "VAL007"}},

	{"no file provided", UserMessage{"No file was selected", "Please select a spreadsheet to upload", "FILE004"}},
	{"invalid request body", UserMessage{"The request could not be read", "Check the request format and try again", "REQ001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If nothing matches, a generic fallback message with code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var batchErr *BatchValidationError
	if errors.As(err, &batchErr) {
		return UserMessage{
			Message: "Some rows failed validation on the server",
			Action:  "Upload the file again to see the current errors",
			Code:    "VAL010",
		}
	}

	for _, et := range errorTargets {
		if errors.Is(err, et.target) {
			return et.msg
		}
	}

	if IsInfrastructure(err) {
		return UserMessage{"Unable to reach the database", "Please try again in a few moments", "DB003"}
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

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

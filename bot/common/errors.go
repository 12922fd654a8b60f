package common

import (
	"errors"
	"fmt"

	"queuebot/service"

	log "github.com/sirupsen/logrus"
)

const systemErrorMessage = "❌ Something went wrong. Please try again later."

// BotError represents a structured error with user-facing and internal messages
type BotError struct {
	UserMessage string      // Message shown to Discord user
	LogMessage  string      // Internal message for logging
	System      bool        // Whether the failure is ours rather than the user's
	Err         error       // Underlying error
	Context     interface{} // Additional context for logging
}

// Error implements the error interface
func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.LogMessage, e.Err)
	}
	return e.LogMessage
}

// Unwrap returns the underlying error
func (e *BotError) Unwrap() error {
	return e.Err
}

// NewUserError creates an error for user-caused issues (unknown channel, bad setting value, etc)
func NewUserError(userMessage string, logMessage string) *BotError {
	return &BotError{
		UserMessage: userMessage,
		LogMessage:  logMessage,
	}
}

// NewSystemError creates an error for system issues (database, Discord API, unexpected state)
func NewSystemError(err error, logMessage string) *BotError {
	return &BotError{
		UserMessage: systemErrorMessage,
		LogMessage:  logMessage,
		System:      true,
		Err:         err,
	}
}

// FromError classifies an error returned by the queue service. Input errors
// keep their message for the user; anything else becomes a system error.
func FromError(err error, logMessage string) *BotError {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr
	}

	var inputErr *service.InputError
	if errors.As(err, &inputErr) {
		return &BotError{
			UserMessage: inputErr.Message,
			LogMessage:  logMessage,
			Err:         err,
		}
	}
	return NewSystemError(err, logMessage)
}

// HandleError logs a failed command and tells the user what went wrong
func HandleError(m Messenger, req *Request, err error) {
	botErr := FromError(err, "Command failed")

	fields := log.Fields{
		"guild_id":     req.GuildID,
		"user_id":      req.AuthorID,
		"command":      req.Command.Name,
		"user_message": botErr.UserMessage,
		"context":      botErr.Context,
	}
	if botErr.System {
		log.WithFields(fields).WithError(botErr).Error(botErr.LogMessage)
	} else {
		log.WithFields(fields).Debug(botErr.Error())
	}

	Reply(m, req, botErr.UserMessage)
}

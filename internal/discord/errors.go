package discord

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/Iron-Ham/teambot/internal/errors"
)

// classify wraps a discordgo failure in a PlatformError carrying the matching
// platform sentinel.
func classify(op string, err error) *errors.PlatformError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.NewPlatformError(op, fmt.Errorf("%w: %w", errors.ErrTransport, err))
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return errors.NewPlatformError(op, fmt.Errorf("%w: %w", errors.ErrTransport, err))
	}

	status, code, detail := 0, 0, ""
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
		detail = http.StatusText(status)
	}
	if restErr.Message != nil {
		code = restErr.Message.Code
		if restErr.Message.Message != "" {
			detail = restErr.Message.Message
		}
	}

	return errors.NewPlatformError(op, fmt.Errorf("%w: %s", restKind(status, code), detail)).
		WithStatusCode(status)
}

func restKind(status, code int) error {
	switch code {
	case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser, discordgo.ErrCodeUnknownChannel:
		return errors.ErrNotFound
	case discordgo.ErrCodeTargetIsNotConnectedToVoice:
		return errors.ErrNotInLocation
	case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
		return errors.ErrPermissionDenied
	}

	switch status {
	case http.StatusNotFound:
		return errors.ErrNotFound
	case http.StatusForbidden:
		return errors.ErrPermissionDenied
	default:
		return errors.ErrTransport
	}
}

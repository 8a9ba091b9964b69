package nexusapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/api/googleapi"

	"nexustodo/internal/transport"
)

// AgentNotFoundMessage is shown when the agent endpoint answers 404.
const AgentNotFoundMessage = "agent endpoint not found; set agent_base_url in the config"

const defaultMessage = "request failed"

// bodyMessage extracts the server's message from an error body: the
// error.message field, then message, then a non-JSON body verbatim, then
// the status text.
func bodyMessage(text, statusText string) string {
	text = strings.TrimSpace(text)
	if text != "" {
		if gjson.Valid(text) {
			for _, path := range []string{"error.message", "message"} {
				if msg := gjson.Get(text, path).String(); msg != "" {
					return msg
				}
			}
		} else {
			return text
		}
	}
	if statusText != "" {
		return statusText
	}
	return defaultMessage
}

// Message returns a user-facing description of err.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			if apiErr.Message == "" || apiErr.Message == http.StatusText(apiErr.Code) {
				return "token rejected (check token in config)"
			}
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return defaultMessage
	}

	if errors.Is(err, transport.ErrCancelled) {
		return "request cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}

	var netErr *transport.NetworkError
	if errors.As(err, &netErr) {
		return "network unavailable: " + netErr.Err.Error()
	}

	return err.Error()
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

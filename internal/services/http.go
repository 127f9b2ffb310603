package services

import (
	"fmt"
	"net/http"
	"strings"
)

// StatusError maps a non-2xx HTTP status onto a marked error: 429 and 5xx
// are ErrTransient, other failures ErrExternalTool. It returns nil for
// success codes.
func StatusError(stage, op string, status int, body []byte) error {
	if status < http.StatusMultipleChoices {
		return nil
	}
	snippet := strings.TrimSpace(string(body))
	if runes := []rune(snippet); len(runes) > 200 {
		snippet = string(runes[:200]) + "..."
	}
	msg := fmt.Sprintf("http %d: %s", status, snippet)
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return Wrap(ErrTransient, stage, op, msg, nil)
	}
	return Wrap(ErrExternalTool, stage, op, msg, nil)
}

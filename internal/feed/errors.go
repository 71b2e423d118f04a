package feed

import (
	"errors"
	"strings"

	"github.com/chromedp/chromedp"
)

// ErrSessionLost reports that the browser, its context or the page is gone and
// the session must be rebuilt.
var ErrSessionLost = errors.New("feed session lost")

var lostMarkers = []string{
	"target closed",
	"session closed",
	"browser has been closed",
	"websocket: close",
}

// IsSessionLost reports whether err belongs to the closed-session class.
func IsSessionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionLost) ||
		errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrChannelClosed) ||
		errors.Is(err, chromedp.ErrInvalidTarget) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range lostMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

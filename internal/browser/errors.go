package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSessionLost indicates the automated browser process has become unusable
// and the session must be replaced before any further page work.
var ErrSessionLost = errors.New("browser session lost")

// sessionLossSignatures are the devtools transport failure modes that mean
// the browser process is gone rather than a page merely being slow.
var sessionLossSignatures = []string{
	"closed",
	"crash",
	"detached",
}

// classify wraps fatal transport errors with ErrSessionLost so callers can
// branch with errors.Is instead of re-parsing message text.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range sessionLossSignatures {
		if strings.Contains(msg, sig) {
			return fmt.Errorf("%w: %v", ErrSessionLost, err)
		}
	}
	return err
}

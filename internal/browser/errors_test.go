package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		lost bool
	}{
		{name: "Nil", err: nil, lost: false},
		{name: "TargetClosed", err: errors.New("chromedp run: target closed"), lost: true},
		{name: "BrowserCrash", err: errors.New("tab crashed"), lost: true},
		{name: "FrameDetached", err: errors.New("frame detached from session"), lost: true},
		{name: "PlainTimeout", err: fmt.Errorf("wait: %w", context.DeadlineExceeded), lost: false},
		{name: "Canceled", err: context.Canceled, lost: false},
		{name: "OrdinaryError", err: errors.New("element not interactable"), lost: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.lost, errors.Is(got, ErrSessionLost))
		})
	}
}

func TestClassifyPreservesTimeout(t *testing.T) {
	err := classify(fmt.Errorf("wait visible: %w", context.DeadlineExceeded))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrSessionLost))
}

package scheduler

import (
	"testing"
)

func TestNewRejectsBadExpressions(t *testing.T) {
	for _, spec := range []string{"", "not a cron", "99 * * * *"} {
		if _, err := New(spec, nil); err == nil {
			t.Errorf("New(%q) expected error", spec)
		}
	}
}

func TestNewAcceptsFiveFieldExpressions(t *testing.T) {
	for _, spec := range []string{"0 * * * *", "*/30 * * * *", "0 6 * * 1-5"} {
		if _, err := New(spec, nil); err != nil {
			t.Errorf("New(%q) error = %v", spec, err)
		}
	}
}

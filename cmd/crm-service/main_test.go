package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	tests := []struct {
		level string
		want  log.Level
	}{
		{level: "debug", want: log.DebugLevel},
		{level: "warn", want: log.WarnLevel},
		{level: "loud", want: log.InfoLevel},
	}
	for _, tt := range tests {
		setupLogger(tt.level)
		if got := log.GetLevel(); got != tt.want {
			t.Errorf("setupLogger(%q): expected %s, got %s", tt.level, tt.want, got)
		}
	}

	if _, ok := log.StandardLogger().Formatter.(*log.TextFormatter); !ok {
		t.Error("expected text formatter")
	}
}

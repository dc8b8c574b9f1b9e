package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		json, debug bool
		wantDebug   bool
	}{
		{json: true, debug: false, wantDebug: false},
		{json: false, debug: true, wantDebug: true},
	}

	for _, tt := range tests {
		l, err := New(tt.json, tt.debug)
		if err != nil {
			t.Fatalf("New(%t, %t): %v", tt.json, tt.debug, err)
		}
		if got := l.Core().Enabled(zapcore.DebugLevel); got != tt.wantDebug {
			t.Fatalf("New(%t, %t): debug enabled = %t, want %t", tt.json, tt.debug, got, tt.wantDebug)
		}
	}
}

package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestParseLogLevel(t *testing.T) {
	testCases := []struct {
		raw  string
		want log.Level
	}{
		{raw: "", want: log.InfoLevel},
		{raw: "debug", want: log.DebugLevel},
		{raw: " WARN ", want: log.WarnLevel},
		{raw: "error", want: log.ErrorLevel},
		{raw: "verbose", want: log.InfoLevel},
	}

	for _, tc := range testCases {
		if got := parseLogLevel(tc.raw); got != tc.want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	setupLogger("debug")
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}

	formatter, ok := log.StandardLogger().Formatter.(*log.TextFormatter)
	if !ok || !formatter.FullTimestamp {
		t.Fatalf("expected text formatter with full timestamp, got %T", log.StandardLogger().Formatter)
	}
}

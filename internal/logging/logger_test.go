package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(testContext *testing.T) {
	testCases := []struct {
		level    string
		expected zapcore.Level
	}{
		{level: "debug", expected: zapcore.DebugLevel},
		{level: "", expected: zapcore.InfoLevel},
		{level: "WARNING", expected: zapcore.WarnLevel},
		{level: "error", expected: zapcore.ErrorLevel},
		{level: "verbose", expected: zapcore.InfoLevel},
	}

	for _, testCase := range testCases {
		logger, err := NewLogger(testCase.level, "console")
		if err != nil {
			testContext.Fatalf("unexpected error for %q: %v", testCase.level, err)
		}
		if !logger.Core().Enabled(testCase.expected) {
			testContext.Fatalf("expected %s enabled for %q", testCase.expected, testCase.level)
		}
		if testCase.expected > zapcore.DebugLevel && logger.Core().Enabled(testCase.expected-1) {
			testContext.Fatalf("expected %s disabled for %q", testCase.expected-1, testCase.level)
		}
	}
}

func TestNewLoggerWithLevelAdjustsAtRuntime(testContext *testing.T) {
	logger, level, err := NewLoggerWithLevel("error", "json")
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		testContext.Fatalf("info must be disabled at error level")
	}

	level.SetLevel(ParseLevel("debug"))

	if !logger.Core().Enabled(zapcore.DebugLevel) {
		testContext.Fatalf("debug must be enabled after the level change")
	}
}

package config

import "testing"

func TestNewLoggerFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "kv"} {
		t.Run(format, func(t *testing.T) {
			logger, err := NewLogger("info", format)
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			logger.Info("test message")
		})
	}
}

func TestNewLoggerWarningAlias(t *testing.T) {
	if _, err := NewLogger("WARNING", "text"); err != nil {
		t.Errorf("WARNING level rejected: %v", err)
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	if _, err := NewLogger("loud", "text"); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestNewLoggerInvalidFormat(t *testing.T) {
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Error("expected error for invalid format")
	}
}

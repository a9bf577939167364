package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(&buf, "warn", "json")
	l.Info("dropped")
	l.WithField("user_id", "u1").Warn("kept")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "kept" || line["user_id"] != "u1" {
		t.Fatalf("unexpected entry: %v", line)
	}
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	if l := New("loud", "text"); l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v", l.GetLevel())
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/knovault/go-live-sync/errors"
)

func newCaptureLogger(level string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewLoggerWithWriter(Config{
		Level:       level,
		Format:      "json",
		Environment: EnvProduction,
	}, buf)
	return logger, buf
}

func TestLogError_SyncError(t *testing.T) {
	logger, buf := newCaptureLogger("info")

	err := errors.NewConflictNotFound("c9")
	logger.LogError(context.Background(), err, "resolve failed")

	var entry map[string]interface{}
	if uerr := json.Unmarshal(buf.Bytes(), &entry); uerr != nil {
		t.Fatalf("log entry is not JSON: %v\n%s", uerr, buf.String())
	}

	se, ok := entry["sync_error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected structured sync_error group, got %v", entry)
	}
	if se["code"] != string(errors.ErrCodeConflictNotFound) {
		t.Errorf("expected code in log, got %v", se["code"])
	}
	md, ok := se["metadata"].(map[string]interface{})
	if !ok || md["conflict_id"] != "c9" {
		t.Errorf("expected conflict_id metadata, got %v", se["metadata"])
	}
}

func TestLogError_PlainError(t *testing.T) {
	logger, buf := newCaptureLogger("info")

	logger.LogError(context.Background(), fmt.Errorf("boom"), "something failed")

	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Errorf("expected plain error string in log, got %s", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	logger, buf := newCaptureLogger("info")

	logger.WithComponent(Component("manager")).Info("hello")

	if !strings.Contains(buf.String(), `"component":"manager"`) {
		t.Errorf("expected component attribute, got %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newCaptureLogger("warn")

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("info entry leaked through warn level: %s", buf.String())
	}

	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("warn entry was dropped")
	}
}

func TestLogOperation_PropagatesError(t *testing.T) {
	logger, _ := newCaptureLogger("error")

	want := fmt.Errorf("op failed")
	got := logger.LogOperation(context.Background(), Operation("resolve"), Component("workflow"), func() error {
		return want
	})
	if got != want {
		t.Errorf("expected error to propagate, got %v", got)
	}
}

package observe

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZap_LevelsAndFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	z := NewZap(zap.New(core))

	z.Count(CacheHit, "csiTasks")
	z.Duration(Fetch, "allUsersData", 12*time.Millisecond, nil)
	z.Duration(Fetch, "allUsersData", time.Millisecond, errors.New("boom"))

	all := logs.All()
	if len(all) != 3 {
		t.Fatalf("want 3 log entries, got %d", len(all))
	}
	if all[0].Message != CacheHit || all[0].ContextMap()["label"] != "csiTasks" {
		t.Fatalf("bad counter entry: %+v", all[0])
	}
	if all[1].Level != zapcore.DebugLevel {
		t.Fatalf("successful fetch must log at debug, got %v", all[1].Level)
	}
	if all[2].Level != zapcore.WarnLevel || all[2].ContextMap()["error"] != "boom" {
		t.Fatalf("failed fetch must log at warn with error: %+v", all[2])
	}
}

func TestNop_And_NilLogger(t *testing.T) {
	t.Parallel()

	var o Observer = Nop{}
	o.Count(CacheMiss, "x")
	o.Duration(Mutation, "", time.Second, errors.New("ignored"))

	o = NewZap(nil)
	o.Count(CacheInvalidate, "")
}

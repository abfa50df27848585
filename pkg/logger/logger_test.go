package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInfoCarriesServiceField(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))
	defer Set(nil)
	old := SetServiceName("engine")
	defer SetServiceName(old)

	Info("feed %s connected", "okx")
	Warn("queue full")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "feed okx connected" {
		t.Fatalf("message = %q", entries[0].Message)
	}
	if entries[0].ContextMap()["service"] != "engine" {
		t.Fatalf("service field missing: %v", entries[0].ContextMap())
	}
}

func TestNopByDefault(t *testing.T) {
	Set(nil)
	Error("must not panic without Init")
}

package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFieldsSkipsBlank(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  source  ", Value: "  adzuna  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "source" || fields[0].String != "adzuna" {
		t.Fatalf("unexpected field: %+v", fields[0])
	}
}

func TestWithFieldsNilLogger(t *testing.T) {
	enriched := WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}

	enriched.Info("does not panic")
}

func TestTaggingHelpers(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithCommonFields(base, "gemini", "gemini-2.5-flash").Info("ai")
	WithSource(base, "headhunter", "api.hh.ru").Info("source")
	WithCycle(base, "c-1").Info("cycle")
	WithSource(base, "feed", "").Info("no domain")

	entries := observed.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	cases := []map[string]string{
		{FieldProvider: "gemini", FieldModel: "gemini-2.5-flash"},
		{FieldSource: "headhunter", FieldDomain: "api.hh.ru"},
		{FieldCycle: "c-1"},
		{FieldSource: "feed"},
	}

	for i, want := range cases {
		ctx := entries[i].ContextMap()
		if len(ctx) != len(want) {
			t.Fatalf("entry %d: expected %d fields, got %v", i, len(want), ctx)
		}
		for k, v := range want {
			if ctx[k] != v {
				t.Fatalf("entry %d: expected %s=%q, got %v", i, k, v, ctx[k])
			}
		}
	}
}

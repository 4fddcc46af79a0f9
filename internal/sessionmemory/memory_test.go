package sessionmemory

import (
	"reflect"
	"strings"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

func TestCompactionPreservesHeadAndTail(t *testing.T) {
	m := New("system prompt", "build a hello page")
	m.ByteBudget = 500
	m.TailCount = 2

	for i := 0; i < 50; i++ {
		m.Append(models.SessionMessage{
			Role:    models.RoleAssistant,
			Content: strings.Repeat("x", 50),
		})
	}

	before := append([]models.SessionMessage(nil), m.messages...)
	head := before[:2]
	tail := before[len(before)-2:]

	compacted := m.CompactIfNeeded()
	if !compacted {
		t.Fatalf("expected compaction to trigger")
	}

	after := m.Messages()
	if !reflect.DeepEqual(after[0], head[0]) || !reflect.DeepEqual(after[1], head[1]) {
		t.Fatalf("head messages were not preserved byte-identical")
	}
	gotTail := after[len(after)-2:]
	if !reflect.DeepEqual(gotTail[0], tail[0]) || !reflect.DeepEqual(gotTail[1], tail[1]) {
		t.Fatalf("tail messages were not preserved byte-identical")
	}
	if len(after) >= len(before) {
		t.Fatalf("expected compaction to shrink the transcript: before=%d after=%d", len(before), len(after))
	}
}

func TestCompactionNoOpUnderBudget(t *testing.T) {
	m := New("system", "task")
	m.Append(models.SessionMessage{Role: models.RoleAssistant, Content: "short"})
	if m.CompactIfNeeded() {
		t.Fatalf("should not compact under budget")
	}
}

func TestUsagePercent(t *testing.T) {
	m := New("s", "t")
	m.ByteBudget = 100
	if m.UsagePercent() < 0 {
		t.Fatalf("usage percent should never be negative")
	}
}

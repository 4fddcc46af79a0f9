// Package sessionmemory holds the ordered conversational transcript for
// one run and compacts it when its byte budget is exceeded, preserving
// the first two messages and a verbatim tail window.
package sessionmemory

import (
	"fmt"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// DefaultByteBudget and DefaultTailCount match the teacher's context
// packer defaults scaled from a token budget to a byte budget (~4 bytes
// per token).
const (
	DefaultByteBudget = 30_000
	DefaultTailCount  = 12
)

// Memory is the append-only transcript with compaction.
type Memory struct {
	messages   []models.SessionMessage
	ByteBudget int
	TailCount  int
}

// New builds a Memory seeded with an initial system message and the
// user's task, which are always preserved verbatim across compaction.
func New(systemPrompt, task string) *Memory {
	return &Memory{
		messages: []models.SessionMessage{
			{Role: models.RoleSystem, Content: systemPrompt},
			{Role: models.RoleUser, Content: task},
		},
		ByteBudget: DefaultByteBudget,
		TailCount:  DefaultTailCount,
	}
}

// Append adds a message to the transcript.
func (m *Memory) Append(msg models.SessionMessage) {
	m.messages = append(m.messages, msg)
}

// Messages returns the current transcript, compacting first if the byte
// budget is exceeded.
func (m *Memory) Messages() []models.SessionMessage {
	m.CompactIfNeeded()
	return append([]models.SessionMessage(nil), m.messages...)
}

// TotalBytes sums the approximate content-byte usage of the transcript.
func (m *Memory) TotalBytes() int {
	total := 0
	for _, msg := range m.messages {
		total += msg.ContentBytes()
	}
	return total
}

// UsagePercent reports TotalBytes as a percentage of ByteBudget, capped
// at 999. It is not emitted on any NDJSON event.
func (m *Memory) UsagePercent() int {
	if m.ByteBudget <= 0 {
		return 0
	}
	pct := m.TotalBytes() * 100 / m.ByteBudget
	if pct > 999 {
		pct = 999
	}
	return pct
}

// CompactIfNeeded rewrites the middle of the transcript into a single
// summary user-message when total content bytes exceed ByteBudget. The
// first two messages (system prompt, initial task) and the last
// TailCount messages are always preserved byte-identical.
func (m *Memory) CompactIfNeeded() bool {
	if m.TotalBytes() <= m.ByteBudget {
		return false
	}
	head := 2
	if len(m.messages) <= head+m.TailCount {
		return false
	}

	middleStart := head
	middleEnd := len(m.messages) - m.TailCount
	if middleEnd <= middleStart {
		return false
	}
	middle := m.messages[middleStart:middleEnd]

	summary := summarize(middle)

	compacted := make([]models.SessionMessage, 0, head+1+m.TailCount)
	compacted = append(compacted, m.messages[:head]...)
	compacted = append(compacted, models.SessionMessage{
		Role:    models.RoleUser,
		Content: summary,
	})
	compacted = append(compacted, m.messages[middleEnd:]...)
	m.messages = compacted
	return true
}

// summarize renders a compact, human-readable digest of the messages
// being dropped: role, a short content excerpt, and any tool calls made.
func summarize(messages []models.SessionMessage) string {
	var sb strings.Builder
	sb.WriteString("[compacted transcript summary]\n")
	for _, msg := range messages {
		excerpt := msg.Content
		if len(excerpt) > 200 {
			excerpt = excerpt[:200] + "…"
		}
		fmt.Fprintf(&sb, "- %s: %s", msg.Role, excerpt)
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(&sb, " [tool_call:%s]", tc.Name)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

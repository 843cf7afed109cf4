package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/futig/compliance-rag/internal/entity"
)

// MaxMessageLength is the Telegram limit for one text message.
const MaxMessageLength = 4096

const (
	MsgWelcome = `👋 Hello! I answer questions about the organisation's compliance policies and procedures.

Just send me your question as a text message. Every answer lists the documents it is based on.`

	MsgHelp = `🤖 Bot commands:

/start - Show the welcome message
/help - Show this help

How it works:
1. Send a question in plain text
2. I search the compliance knowledge base
3. You get an answer with numbered sources

Press "Details" under an answer to see its audit reference.`

	MsgEmptyQuestion = "✍️ Please send your question as text."

	MsgUnknownCommand = "❌ Unknown command. Use /help"

	MsgDetailsExpired = "⌛ Details for this answer are no longer available"
)

const (
	ErrGeneric          = "❌ Something went wrong. Please try again later."
	ErrTimeout          = "⏱ The answer took too long. Please try again."
	ErrNetworkIssue     = "🌐 The knowledge base is temporarily unreachable. Please try again later."
	ErrPermissionDenied = "🔒 You are not allowed to query the knowledge base. Contact your compliance officer."
	ErrInvalidQuestion  = "✍️ That question could not be processed. Please rephrase it."
)

// Answer formats the answer text followed by its numbered sources.
func Answer(ans *entity.Answer) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(ans.Text))

	if len(ans.Citations) > 0 {
		sb.WriteString("\n\n📚 Sources:\n")
		for _, c := range ans.Citations {
			fmt.Fprintf(&sb, "[%d] %s\n", c.Index, sourceTitle(c))
		}
	} else if ans.InsufficientContext {
		sb.WriteString("\n\nℹ️ No matching documents were found.")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// Details describes an answer for audit follow-up.
func Details(ans *entity.Answer) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔎 Query %s\n", ans.QueryID)
	fmt.Fprintf(&sb, "State: %s\n", ans.State)
	if ans.Model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", ans.Model)
	}
	fmt.Fprintf(&sb, "Time: %.1fs\n", ans.ElapsedSeconds)

	for _, c := range ans.Citations {
		fmt.Fprintf(&sb, "\n[%d] %s\n    document: %s\n    chunk: %s\n    score: %.3f\n",
			c.Index, sourceTitle(c), c.DocumentID, c.ChunkID, c.Score)
	}
	for _, w := range ans.Warnings {
		fmt.Fprintf(&sb, "\n⚠️ %s", w)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func sourceTitle(c entity.Citation) string {
	if c.DocumentTitle != "" {
		return c.DocumentTitle
	}
	return c.DocumentID
}

// Split cuts text into parts no longer than limit runes, preferring line
// breaks.
func Split(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		lineLen := utf8.RuneCountInString(line)
		if currentLen+lineLen > limit {
			flush()
		}
		for lineLen > limit {
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			lineLen -= limit
		}
		current.WriteString(line)
		currentLen += lineLen
	}
	flush()

	return parts
}

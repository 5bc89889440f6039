// Package agent runs a single agent instance's agentic loop: it sends the
// conversation to its model endpoint, extracts and executes tool calls,
// and repeats until the model produces a final answer or the loop detects
// it is stuck (spec.md §4.6).
package agent

import (
	"unicode/utf8"

	"github.com/fleetforge/conductor/pkg/model"
)

// tokensPerChar mirrors the teacher's conservative token estimate.
const tokensPerChar = 0.25

// estimateTokens approximates a message's token cost from its character
// count, the same heuristic the teacher's context window tracker uses.
func estimateTokens(s string) int {
	n := int(float64(utf8.RuneCountInString(s)) * tokensPerChar)
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// unit is one atomic, never-split piece of history: either a single plain
// message, or an assistant message bearing tool_calls together with every
// tool-role message answering those calls. The teacher's Truncator has no
// notion of this pairing; trimming a unit always removes it whole.
type unit struct {
	messages []model.Message
	tokens   int
}

func groupUnits(messages []model.Message) []unit {
	var units []unit
	i := 0
	for i < len(messages) {
		m := messages[i]
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			grouped := []model.Message{m}
			tokens := estimateTokens(m.Content)
			j := i + 1
			for j < len(messages) && messages[j].Role == "tool" {
				grouped = append(grouped, messages[j])
				tokens += estimateTokens(messages[j].Content)
				j++
			}
			units = append(units, unit{messages: grouped, tokens: tokens})
			i = j
			continue
		}
		units = append(units, unit{messages: []model.Message{m}, tokens: estimateTokens(m.Content)})
		i++
	}
	return units
}

// Trim reduces messages to fit within maxTokens, always keeping the first
// keepFirst units (typically the system prompt) and the most recent units
// that fit, and never splitting a tool-call/tool-result unit apart
// (spec.md §4.6 step 1, the context-trimming invariant).
func Trim(messages []model.Message, maxTokens, keepFirst int) []model.Message {
	units := groupUnits(messages)
	if len(units) <= keepFirst {
		return messages
	}

	total := 0
	for _, u := range units {
		total += u.tokens
	}
	if total <= maxTokens {
		return messages
	}

	head := units[:keepFirst]
	tail := units[keepFirst:]

	headTokens := 0
	for _, u := range head {
		headTokens += u.tokens
	}

	// Keep as many of the most recent tail units as fit, dropping from the
	// oldest end of the tail first.
	budget := maxTokens - headTokens
	kept := 0
	used := 0
	for i := len(tail) - 1; i >= 0; i-- {
		if used+tail[i].tokens > budget && kept > 0 {
			break
		}
		used += tail[i].tokens
		kept++
	}
	start := len(tail) - kept

	var out []model.Message
	for _, u := range head {
		out = append(out, u.messages...)
	}
	for _, u := range tail[start:] {
		out = append(out, u.messages...)
	}
	return out
}

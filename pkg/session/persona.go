package session

import (
	"fmt"
	"strings"
)

// DefaultPersonality is the host personality used when the caller does
// not pick one.
const DefaultPersonality = "a warm, quick-witted game show host who keeps the energy up without rambling"

// HostInstruction builds the one-time persona/system instruction for
// the live session: the conversation topic, difficulty, and host
// personality, plus the ground rules of the game.
func HostInstruction(topic, difficulty, personality string) string {
	if personality == "" {
		personality = DefaultPersonality
	}
	if topic == "" {
		topic = "general knowledge"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, running a live voice trivia game about %s at %s difficulty. ", personality, topic, difficulty)
	b.WriteString("Ask one question at a time and wait for the player to answer out loud. ")
	b.WriteString("After each answer, say whether it was right, give a one-sentence explanation, and move on to the next question. ")
	b.WriteString("Keep every response short: this is a spoken conversation, not an essay. ")
	b.WriteString("If the player interrupts you, stop talking and listen.")
	return b.String()
}

// HostInstructionWithQuestions appends a prepared question bank to the
// persona instruction. The host draws from these before improvising.
func HostInstructionWithQuestions(topic, difficulty, personality string, questions []string) string {
	base := HostInstruction(topic, difficulty, personality)
	if len(questions) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nUse these prepared questions first, in order, before making up your own:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return b.String()
}

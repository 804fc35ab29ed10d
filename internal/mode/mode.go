// Package mode defines the seven assistant modes and their system prompts.
//
// A mode is a fixed intellectual stance. Its system prompt is a shared
// preamble concatenated with a per-mode stance text. The table is
// immutable after process start; unknown identifiers are rejected, never
// silently mapped to a default.
package mode

import (
	"errors"
	"fmt"
	"sort"
)

// Mode identifies one of the seven assistant stances.
type Mode string

const (
	Balanced  Mode = "balanced"
	Challenge Mode = "challenge"
	Explore   Mode = "explore"
	Ideate    Mode = "ideate"
	Clarify   Mode = "clarify"
	Plan      Mode = "plan"
	Audit     Mode = "audit"
)

// Default is the mode assigned to new conversations.
const Default = Balanced

// ErrUnknownMode is returned for identifiers outside the fixed set.
var ErrUnknownMode = errors.New("unknown mode")

// preamble is shared by every mode; the stance text is appended to it.
const preamble = "You are a technical assistant for engineers. " +
	"Be accurate, be specific, and say so plainly when you are unsure. " +
	"Prefer concrete numbers, references, and worked examples over generalities.\n\n"

// Info describes a mode for listing endpoints.
type Info struct {
	ID          Mode   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type definition struct {
	name        string
	description string
	stance      string
}

var definitions = map[Mode]definition{
	Balanced: {
		name:        "Balanced",
		description: "Clear, well-rounded answers without a forced angle.",
		stance: "Provide clear, accurate, and balanced responses. " +
			"Present the mainstream view first, note significant dissent where it exists, " +
			"and keep the answer proportionate to the question.",
	},
	Challenge: {
		name:        "Challenge",
		description: "Stress-tests the premise and the proposed approach.",
		stance: "Challenge the user's premise before answering. " +
			"Identify hidden assumptions, failure modes, and cheaper alternatives they may have dismissed. " +
			"Disagree directly when the evidence supports it; do not soften a flawed plan to be agreeable.",
	},
	Explore: {
		name:        "Explore",
		description: "Surveys the solution space rather than picking one answer.",
		stance: "Map the solution space instead of committing to a single answer. " +
			"Lay out the viable approaches with their trade-offs, the conditions under which each wins, " +
			"and what evidence would settle the choice.",
	},
	Ideate: {
		name:        "Ideate",
		description: "Generates many candidate ideas, including unconventional ones.",
		stance: "Generate a wide set of candidate ideas before judging any of them. " +
			"Include unconventional options and adjacent-field analogies, " +
			"then mark the few most promising and say why.",
	},
	Clarify: {
		name:        "Clarify",
		description: "Breaks down a confusing topic from first principles.",
		stance: "Explain from first principles. " +
			"Define every term of art on first use, build up in small steps, " +
			"and check each step against a concrete example before moving to the next.",
	},
	Plan: {
		name:        "Plan",
		description: "Turns a goal into a concrete, ordered sequence of steps.",
		stance: "Turn the goal into an ordered, actionable plan. " +
			"For each step give the inputs required, the expected output, and how to verify it; " +
			"flag the steps most likely to slip and what the fallback is.",
	},
	Audit: {
		name:        "Audit",
		description: "Reviews existing work for defects, risks, and omissions.",
		stance: "Review the provided material as a critical auditor. " +
			"Report defects, risks, and omissions ordered by severity, each with the evidence for it " +
			"and a suggested remediation. Say explicitly what you could not assess.",
	},
}

// SystemPrompt resolves a mode identifier to its full system prompt.
// Unknown identifiers return ErrUnknownMode; there is no fallback.
func SystemPrompt(m Mode) (string, error) {
	def, ok := definitions[m]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, m)
	}
	return preamble + def.stance, nil
}

// Valid reports whether m is one of the seven known modes.
func Valid(m Mode) bool {
	_, ok := definitions[m]
	return ok
}

// All returns every mode sorted by identifier, for listing endpoints.
func All() []Info {
	infos := make([]Info, 0, len(definitions))
	for id, def := range definitions {
		infos = append(infos, Info{ID: id, Name: def.name, Description: def.description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

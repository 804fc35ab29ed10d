package llm

import (
	"errors"
	"fmt"
	"sort"
)

// ModelID is the client-facing model tier identifier. Clients select a
// tier; the concrete upstream model name is resolved server-side so the
// provider can be upgraded without breaking stored conversations.
type ModelID string

const (
	Haiku  ModelID = "haiku"
	Sonnet ModelID = "sonnet"
	Opus   ModelID = "opus"
)

// ErrUnknownModel is returned for identifiers outside the fixed table.
// There is no default substitution; validation happens before any
// network call or database write.
var ErrUnknownModel = errors.New("unknown model")

// ModelInfo describes one selectable tier for listing endpoints.
type ModelInfo struct {
	ID          ModelID `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}

type modelEntry struct {
	upstream    string
	name        string
	description string
}

var modelTable = map[ModelID]modelEntry{
	Haiku: {
		upstream:    "claude-3-5-haiku-20241022",
		name:        "Haiku",
		description: "Fastest and cheapest tier, for quick questions.",
	},
	Sonnet: {
		upstream:    "claude-3-5-sonnet-20241022",
		name:        "Sonnet",
		description: "Balanced speed and capability, the default tier.",
	},
	Opus: {
		upstream:    "claude-opus-4-20250514",
		name:        "Opus",
		description: "Most capable tier, for hard technical work.",
	},
}

// ResolveModel maps a tier identifier to the concrete upstream model name.
func ResolveModel(id ModelID) (string, error) {
	entry, ok := modelTable[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return entry.upstream, nil
}

// ValidModel reports whether id is a known tier.
func ValidModel(id ModelID) bool {
	_, ok := modelTable[id]
	return ok
}

// Models returns every selectable tier sorted by identifier.
func Models() []ModelInfo {
	infos := make([]ModelInfo, 0, len(modelTable))
	for id, entry := range modelTable {
		infos = append(infos, ModelInfo{ID: id, Name: entry.name, Description: entry.description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

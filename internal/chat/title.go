package chat

import "unicode/utf8"

// titleMaxRunes is the length at which an automatic conversation title
// is cut. Counted in runes so multibyte text is not split mid-character.
const titleMaxRunes = 50

// titleEllipsis marks a truncated automatic title.
const titleEllipsis = "…"

// proposeTitle derives a conversation title from the first user message:
// the first 50 runes, with an ellipsis appended when truncation occurred.
func proposeTitle(content string) string {
	if utf8.RuneCountInString(content) <= titleMaxRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleMaxRunes]) + titleEllipsis
}

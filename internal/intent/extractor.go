// Package intent turns free-text utterances into structured commands using an
// ordered keyword rule table and a device alias table. No learning involved.
package intent

import (
	"sort"
	"strings"
	"unicode"

	"home-security/internal/domain"
)

// phrase is an utterance lower-cased with punctuation folded to single spaces.
type phrase struct {
	text  string
	words []string
}

func normalize(text string) phrase {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	words := strings.Fields(mapped)
	return phrase{text: strings.Join(words, " "), words: words}
}

// hasSequence reports whether seq appears as consecutive words.
func (p phrase) hasSequence(seq []string) bool {
	if len(seq) == 0 || len(seq) > len(p.words) {
		return false
	}
	for i := 0; i+len(seq) <= len(p.words); i++ {
		match := true
		for j, w := range seq {
			if p.words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

type alias struct {
	words  []string
	device domain.DeviceID
}

// Extractor is immutable after New and safe for concurrent use.
type Extractor struct {
	aliases []alias
}

func New(catalog domain.Catalog) *Extractor {
	var aliases []alias
	for _, d := range catalog {
		for _, a := range d.Aliases {
			words := normalize(a).words
			if len(words) == 0 {
				continue
			}
			aliases = append(aliases, alias{words: words, device: d.ID})
		}
	}

	// Longer aliases win so "front door lock" is not shadowed by "door".
	sort.SliceStable(aliases, func(i, j int) bool {
		return len(aliases[i].words) > len(aliases[j].words)
	})

	return &Extractor{aliases: aliases}
}

// Extract never fails: an utterance it cannot map yields IntentUnknown, and a
// device intent without a recognizable device yields an empty Target.
func (e *Extractor) Extract(text string) domain.Command {
	p := normalize(text)
	cmd := domain.Command{
		Intent:  classify(p),
		RawText: text,
	}

	if cmd.Intent == domain.IntentUnknown || cmd.Intent == domain.IntentStatusReport {
		return cmd
	}

	cmd.Target = e.resolve(p)
	return cmd
}

func (e *Extractor) resolve(p phrase) domain.DeviceID {
	for _, a := range e.aliases {
		if p.hasSequence(a.words) {
			return a.device
		}
	}
	return ""
}

package persona

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// TextSource produces contribution text for a prompt. The core treats the
// result as untrusted plain text.
type TextSource interface {
	ProduceText(ctx context.Context, prompt string) (string, error)
}

// Voices maps a participant to the source that speaks for them.
type Voices interface {
	For(p Persona) TextSource
}

// VoicesFunc adapts a function to Voices.
type VoicesFunc func(p Persona) TextSource

// For implements Voices.
func (f VoicesFunc) For(p Persona) TextSource { return f(p) }

// Scripted is a deterministic offline source that fills templates from the
// persona's expertise. It cycles through the templates on successive calls.
type Scripted struct {
	Persona Persona

	mu    sync.Mutex
	calls int
}

var scriptedTemplates = []string{
	"From the standpoint of %[1]s, the key question is %[2]s. I agree the evidence matters because the data shows a pattern worth studying.",
	"However, %[1]s suggests a different reading of %[2]s. We should try a new approach and combine methods from several fields.",
	"How would %[1]s change the way we think about %[2]s? The core conclusion depends on research we have not yet done.",
	"Perhaps we could test %[2]s with a small experiment. The value for society is real, and the expression of the idea should stay simple.",
}

// ProduceText implements TextSource.
func (s *Scripted) ProduceText(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	i := s.calls % len(scriptedTemplates)
	s.calls++
	s.mu.Unlock()

	field := s.Persona.Domain
	if len(s.Persona.Expertise) > 0 {
		field = s.Persona.Expertise[i%len(s.Persona.Expertise)]
	}
	if field == "" {
		field = "my field"
	}
	// The first line carries the subject; the rest is round context.
	subject, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "this topic"
	}
	return fmt.Sprintf(scriptedTemplates[i], field, subject), nil
}

// ScriptedVoices gives every persona its own Scripted source.
func ScriptedVoices() Voices {
	var mu sync.Mutex
	sources := make(map[string]*Scripted)
	return VoicesFunc(func(p Persona) TextSource {
		mu.Lock()
		defer mu.Unlock()
		s, ok := sources[p.ID]
		if !ok {
			s = &Scripted{Persona: p}
			sources[p.ID] = s
		}
		return s
	})
}

// Package anonymizer maps usernames to stable, session-scoped aliases
// before prompting an LLM — spec.md §4.G. Created once per prompt (a
// "session" in the package's sense); aliases are NOT stable across
// batches, only within the lifetime of one Anonymizer instance.
package anonymizer

import (
	"fmt"
	"strings"
)

// Anonymizer allocates the next alias in the sequence User_A, User_B,
// ..., User_Z, User_A1, User_B1, ... for each novel username it is
// handed. Not safe for concurrent use — callers create one instance
// per batch/prompt, matching spec.md §4.G's "prompt-local" scope.
type Anonymizer struct {
	aliasOf map[string]string
	order   []string
}

// New creates an empty Anonymizer. Mirrors the teacher's
// constructor-built, stateful-service shape (pkg/masking.NewMaskingService)
// rather than a package-level singleton, so callers can create one
// instance per prompt and discard it.
func New() *Anonymizer {
	return &Anonymizer{aliasOf: make(map[string]string)}
}

// Alias returns the stable alias for username, allocating a new one on
// first sight. The same username always maps to the same alias within
// one Anonymizer instance (TestableProperty #5); distinct usernames
// never collide.
func (a *Anonymizer) Alias(username string) string {
	if alias, ok := a.aliasOf[username]; ok {
		return alias
	}
	alias := aliasForIndex(len(a.order))
	a.aliasOf[username] = alias
	a.order = append(a.order, username)
	return alias
}

// Reset clears all allocated aliases, as if the Anonymizer were newly
// constructed.
func (a *Anonymizer) Reset() {
	a.aliasOf = make(map[string]string)
	a.order = nil
}

// aliasForIndex implements the User_A..User_Z, User_A1..User_Z1, ...
// sequence for a zero-based allocation index.
func aliasForIndex(i int) string {
	letter := rune('A' + i%26)
	cycle := i / 26
	if cycle == 0 {
		return fmt.Sprintf("User_%c", letter)
	}
	return fmt.Sprintf("User_%c%d", letter, cycle)
}

// AnonymizableAuthor is the subset of message-author fields the batch
// helper rewrites.
type AnonymizableAuthor struct {
	ID         string
	Username   string
	GlobalName string
}

// AnonymizableMessage is the subset of message fields the batch helper
// rewrites, keyed so callers can round-trip the original entity id
// after the LLM call (the original id, never the anonymized one, is
// what gets written back to AIProcessing — spec.md §4.G, S6).
type AnonymizableMessage struct {
	ID           string
	Author       AnonymizableAuthor
	Content      string
	CleanContent string
}

// AnonymizeOptions configures AnonymizeMessages.
type AnonymizeOptions struct {
	AnonymizeContent bool
}

// AnonymizeMessages replaces author.Username/GlobalName, rewrites
// AuthorID to anon_<last4>, and — when AnonymizeContent is set —
// rewrites "@name" occurrences of any known username in
// Content/CleanContent, all via the same alias mapping. The message's
// own ID is left untouched: callers persist stage results keyed on the
// original message id, never the anonymized author id.
func (a *Anonymizer) AnonymizeMessages(messages []AnonymizableMessage, opts AnonymizeOptions) []AnonymizableMessage {
	for _, m := range messages {
		a.Alias(m.Author.Username)
	}
	out := make([]AnonymizableMessage, len(messages))
	for i, m := range messages {
		alias := a.Alias(m.Author.Username)
		anon := m
		anon.Author.Username = alias
		if m.Author.GlobalName != "" {
			anon.Author.GlobalName = alias
		}
		anon.Author.ID = "anon_" + last4(m.Author.ID)

		if opts.AnonymizeContent {
			anon.Content = rewriteMentions(m.Content, a)
			anon.CleanContent = rewriteMentions(m.CleanContent, a)
		}
		out[i] = anon
	}
	return out
}

func last4(id string) string {
	if len(id) <= 4 {
		return id
	}
	return id[len(id)-4:]
}

// rewriteMentions replaces "@username" occurrences for every username
// already known to a (i.e. already aliased as an author in this batch)
// with its alias. Usernames not yet seen as an author are left as-is —
// AnonymizeMessages aliases authors first, so by the time content
// rewriting runs for a batch, every author of that batch has an alias.
func rewriteMentions(content string, a *Anonymizer) string {
	if content == "" {
		return content
	}
	result := content
	for username, alias := range a.aliasOf {
		result = strings.ReplaceAll(result, "@"+username, "@"+alias)
	}
	return result
}

package prompt

import (
	"fmt"
	"unicode/utf8"

	"codeassist-be/pkg/llm"

	"github.com/pkoukk/tiktoken-go"
)

// File is one uploaded document included as conversation context.
type File struct {
	Name    string
	Content string
}

// Builder assembles the ordered prompt context for a generation:
// system instruction, prior turns (oldest first), file segments, then
// the new user message. Assembly is deterministic: identical inputs
// produce identical output.
type Builder struct {
	system string
	budget int
	enc    *tiktoken.Tiktoken
}

// heuristicCharsPerToken approximates token counts when no BPE encoding
// is available (offline environments). ~4 chars/token holds for English
// and code alike, which is all the budget check needs.
const heuristicCharsPerToken = 4

func NewBuilder(systemPrompt string, tokenBudget int) *Builder {
	// GetEncoding may fetch the BPE ranks on first use; fall back to the
	// character heuristic rather than failing startup.
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		enc = nil
	}
	return &Builder{
		system: systemPrompt,
		budget: tokenBudget,
		enc:    enc,
	}
}

// NewHeuristicBuilder skips BPE loading entirely and always counts with
// the character heuristic. Useful where deterministic startup matters
// more than exact counts.
func NewHeuristicBuilder(systemPrompt string, tokenBudget int) *Builder {
	return &Builder{
		system: systemPrompt,
		budget: tokenBudget,
	}
}

// CountTokens returns the token cost of s, BPE-exact when the encoding
// is loaded, estimated otherwise. Both paths are deterministic.
func (b *Builder) CountTokens(s string) int {
	if b.enc != nil {
		return len(b.enc.Encode(s, nil, nil))
	}
	n := utf8.RuneCountInString(s)
	return (n + heuristicCharsPerToken - 1) / heuristicCharsPerToken
}

// Budget returns the total input token budget.
func (b *Builder) Budget() int {
	return b.budget
}

// FileSegment renders one uploaded file as a delimited context segment.
func FileSegment(f File) string {
	return fmt.Sprintf("file: %s\n---\n%s\n---", f.Name, f.Content)
}

// FileFits reports whether a file segment leaves room next to the system
// instruction. Enforced at ingestion so assembly never has to drop file
// content silently.
func (b *Builder) FileFits(f File) bool {
	return b.CountTokens(FileSegment(f)) <= b.budget-b.CountTokens(b.system)
}

// Build produces the ordered context. The system instruction, file
// segments and the new user message are always included in full; when
// the total would exceed the budget, prior turns are dropped oldest
// first (sliding window).
func (b *Builder) Build(history []llm.Message, files []File, userText string) []llm.Message {
	fixed := b.CountTokens(b.system) + b.CountTokens(userText)

	fileSegments := make([]llm.Message, 0, len(files))
	for _, f := range files {
		seg := FileSegment(f)
		fixed += b.CountTokens(seg)
		fileSegments = append(fileSegments, llm.Message{Role: llm.RoleFile, Content: seg})
	}

	remaining := b.budget - fixed

	// Walk history newest-first, keeping turns while they fit.
	keep := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := b.CountTokens(history[i].Content)
		if cost > remaining {
			break
		}
		remaining -= cost
		keep++
	}
	kept := history[len(history)-keep:]

	out := make([]llm.Message, 0, len(kept)+len(fileSegments)+2)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: b.system})
	out = append(out, kept...)
	out = append(out, fileSegments...)
	out = append(out, llm.Message{Role: llm.RoleUser, Content: userText})
	return out
}

package tutor

import (
	"context"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

const subjectDefault = "default"

var cannedReplies = map[string][]string{
	subjectDefault: {
		"That's an interesting question. Let me help you understand this better.",
		"I'd be happy to explain this topic. Here's what you need to know:",
		"Great question! Let me break this down for you:",
		"I can definitely help with that. Here's an explanation:",
		"Let me share some information about this topic that might help you understand better.",
	},
	"math": {
		"When solving math problems, it's helpful to break them down into smaller steps.",
		"In mathematics, we often look for patterns and relationships between numbers.",
		"This mathematical concept can be understood by thinking about it visually.",
		"Let's approach this step-by-step to find the solution.",
		"Mathematical problems often have multiple solution methods. Let me show you one approach.",
	},
	"science": {
		"This scientific concept is based on observations and experiments that show...",
		"In science, we try to explain phenomena through testable hypotheses.",
		"Scientists have found that this process works by...",
		"The scientific evidence suggests that...",
		"This can be explained using the scientific principle of...",
	},
	"english": {
		"In literature, authors often use various techniques to convey meaning.",
		"This literary device is commonly used to emphasize...",
		"When analyzing this text, consider the author's intended audience and purpose.",
		"The language used here creates a specific tone that...",
		"Let's look at how the structure of this text contributes to its meaning.",
	},
	"history": {
		"Historical events should be understood within their broader context.",
		"Historians analyze primary and secondary sources to understand...",
		"This historical development was influenced by several factors including...",
		"From a historical perspective, this event was significant because...",
		"The historical evidence suggests that this occurred due to...",
	},
}

// Checked in order; the first subject with a matching keyword wins.
var subjectKeywords = []struct {
	subject  string
	keywords []string
}{
	{"math", []string{"math", "algebra", "equation", "geometry", "calculus", "fraction", "number"}},
	{"science", []string{"science", "physics", "chemistry", "biology", "experiment", "atom", "cell"}},
	{"english", []string{"english", "literature", "poem", "essay", "grammar", "novel", "author"}},
	{"history", []string{"history", "historical", "war", "empire", "revolution", "century"}},
}

// CannedCompleter answers offline with subject-keyed replies. The same question always gets
// the same reply.
type CannedCompleter struct {
	clock func() time.Time
}

// NewCannedCompleter constructs the offline completer.
func NewCannedCompleter(clock func() time.Time) *CannedCompleter {
	if clock == nil {
		clock = time.Now
	}
	return &CannedCompleter{clock: clock}
}

// Name identifies the completer in metrics.
func (c *CannedCompleter) Name() string {
	return "canned"
}

// Complete replies to the last user turn.
func (c *CannedCompleter) Complete(_ context.Context, messages []ChatMessage) (ChatMessage, error) {
	question := lastUserContent(messages)
	replies := cannedReplies[detectSubject(question)]
	index := xxh3.HashString(strings.ToLower(question)) % uint64(len(replies))
	return ChatMessage{Role: RoleModel, Content: replies[index], Timestamp: c.clock().UTC()}, nil
}

// Validate always succeeds; no credentials are involved.
func (c *CannedCompleter) Validate(context.Context) error {
	return nil
}

func detectSubject(question string) string {
	lowered := strings.ToLower(question)
	for _, entry := range subjectKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lowered, keyword) {
				return entry.subject
			}
		}
	}
	return subjectDefault
}

func lastUserContent(messages []ChatMessage) string {
	for index := len(messages) - 1; index >= 0; index-- {
		if messages[index].Role == RoleUser {
			return messages[index].Content
		}
	}
	return ""
}

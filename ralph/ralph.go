// Package ralph implements the Ralph meta-loop (C6): a wrapper that
// re-invokes the single-agent step loop across iterations with compacted
// context, completion detection, idle detection, and working memory — so
// the model can observe its own prior artifacts turn over turn.
package ralph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agentkit-go/agentkit/agentstate"
	"github.com/agentkit-go/agentkit/event"
	"github.com/agentkit-go/agentkit/llmclient"
	"github.com/agentkit-go/agentkit/step"
)

// ContextStrategy controls how prior iterations' output is folded into the
// next iteration's prompt.
type ContextStrategy string

const (
	ContextAll       ContextStrategy = "ALL"
	ContextRecent    ContextStrategy = "RECENT"
	ContextSummarize ContextStrategy = "SUMMARIZE"
)

// CompletionCondition names one way an iteration run can be judged complete.
type CompletionCondition string

const (
	ConditionPromiseTag    CompletionCondition = "PROMISE_TAG"
	ConditionMaxIterations CompletionCondition = "MAX_ITERATIONS"
	ConditionIdleThreshold CompletionCondition = "IDLE_THRESHOLD"
)

// Config configures one Ralph run.
type Config struct {
	MaxIterations           int
	IdleThreshold           int
	CompletionPromise       string
	ContextStrategy         ContextStrategy
	RecentCount             int
	SummarizeTokenThreshold int
	CompletionConditions    []CompletionCondition
	MaxStepsPerIteration    int
}

// DefaultConfig returns the defaults named by the original implementation's
// examples (max_iterations=10, idle_threshold=3, ContextStrategy=ALL).
func DefaultConfig() Config {
	return Config{
		MaxIterations:           10,
		IdleThreshold:           3,
		ContextStrategy:         ContextAll,
		RecentCount:             3,
		SummarizeTokenThreshold: 30000,
		CompletionConditions:    []CompletionCondition{ConditionPromiseTag, ConditionIdleThreshold, ConditionMaxIterations},
		MaxStepsPerIteration:    15,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = defaults.IdleThreshold
	}
	if cfg.ContextStrategy == "" {
		cfg.ContextStrategy = defaults.ContextStrategy
	}
	if cfg.RecentCount <= 0 {
		cfg.RecentCount = defaults.RecentCount
	}
	if cfg.SummarizeTokenThreshold <= 0 {
		cfg.SummarizeTokenThreshold = defaults.SummarizeTokenThreshold
	}
	if len(cfg.CompletionConditions) == 0 {
		cfg.CompletionConditions = defaults.CompletionConditions
	}
	if cfg.MaxStepsPerIteration <= 0 {
		cfg.MaxStepsPerIteration = defaults.MaxStepsPerIteration
	}
	return cfg
}

var promiseTagRe = regexp.MustCompile(`<promise>(.*?)</promise>`)

// progressLineRe matches TODO-like progress markers in assistant text, e.g.
// "TODO: write tests" or "DONE: wrote main.py".
var progressLineRe = regexp.MustCompile(`(?im)^\s*(TODO|DONE|PROGRESS)\s*:\s*(.+)$`)

// WorkingMemory is the structured record carried across iterations: derived
// from the run's messages and tool results, never a substitute for them.
type WorkingMemory struct {
	FilesModified  map[string]bool
	PendingTODOs   []string
	CompletedTODOs []string
	Summary        string
	RecentProgress []string
	iterationsIdle int
}

// NewWorkingMemory constructs an empty WorkingMemory.
func NewWorkingMemory() *WorkingMemory {
	return &WorkingMemory{FilesModified: map[string]bool{}}
}

// RecordProgress appends a one-line progress entry observed this iteration.
func (m *WorkingMemory) RecordProgress(line string) {
	m.RecentProgress = append(m.RecentProgress, line)
}

// FilesModifiedCount reports how many distinct file paths have been touched.
func (m *WorkingMemory) FilesModifiedCount() int { return len(m.FilesModified) }

// Summarize returns the read-only status shape surfaced by Status().
func (m *WorkingMemory) Summarize() MemorySummary {
	return MemorySummary{
		FilesModifiedCount: m.FilesModifiedCount(),
		PendingTODOs:       append([]string(nil), m.PendingTODOs...),
		CompletedTODOs:     append([]string(nil), m.CompletedTODOs...),
		RecentProgress:     append([]string(nil), m.RecentProgress...),
	}
}

// scan re-derives working memory deltas from one iteration's messages,
// returning whether any progress (file modification or new progress entry)
// was observed.
func (m *WorkingMemory) scan(messages []llmclient.Message) (progressed bool) {
	before := m.FilesModifiedCount()
	beforeProgress := len(m.RecentProgress)

	for _, msg := range messages {
		if msg.Role != llmclient.RoleAssistant {
			continue
		}
		for _, line := range strings.Split(msg.Content, "\n") {
			if match := progressLineRe.FindStringSubmatch(line); match != nil {
				kind, text := strings.ToUpper(match[1]), strings.TrimSpace(match[2])
				switch kind {
				case "TODO":
					m.PendingTODOs = append(m.PendingTODOs, text)
				case "DONE":
					m.CompletedTODOs = append(m.CompletedTODOs, text)
					m.RecordProgress(text)
				case "PROGRESS":
					m.RecordProgress(text)
				}
			}
		}
		for _, call := range msg.ToolCalls {
			if path := extractFilePath(call.Arguments); path != "" {
				m.FilesModified[path] = true
			}
		}
	}

	return m.FilesModifiedCount() > before || len(m.RecentProgress) > beforeProgress
}

// extractFilePath looks for a "path" or "file_path" key in tool call
// arguments; returns "" when absent. Best-effort only — working memory is
// derivative, never authoritative.
func extractFilePath(args []byte) string {
	for _, key := range []string{`"path"`, `"file_path"`} {
		idx := strings.Index(string(args), key)
		if idx < 0 {
			continue
		}
		rest := string(args)[idx+len(key):]
		rest = strings.TrimLeft(rest, " :")
		if !strings.HasPrefix(rest, `"`) {
			continue
		}
		rest = rest[1:]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			return rest[:end]
		}
	}
	return ""
}

// MemorySummary is the read-only view of WorkingMemory returned by Status.
type MemorySummary struct {
	FilesModifiedCount int
	PendingTODOs       []string
	CompletedTODOs     []string
	RecentProgress     []string
}

// CompletionReason names why a Ralph run stopped iterating.
type CompletionReason string

const (
	ReasonPromise       CompletionReason = "promise"
	ReasonIdle          CompletionReason = "idle"
	ReasonMaxIterations CompletionReason = "max_iterations"
	ReasonSuspended     CompletionReason = "suspended"
)

// State is the read-only status surface exposed by Status().
type State struct {
	Iteration        int
	Completed        bool
	CompletionReason CompletionReason
}

// Status mirrors the original implementation's get_ralph_status() shape.
type Status struct {
	Enabled       bool
	State         State
	MemorySummary MemorySummary
	Config        Config
}

// Loop re-invokes a step.Loop across iterations until a completion condition
// fires.
type Loop struct {
	inner  *step.Loop
	bus    *event.Bus
	cfg    Config
	memory *WorkingMemory

	iteration int
	completed bool
	reason    CompletionReason
}

// New constructs a Ralph Loop wrapping inner.
func New(inner *step.Loop, bus *event.Bus, cfg Config) *Loop {
	return &Loop{inner: inner, bus: bus, cfg: sanitizeConfig(cfg), memory: NewWorkingMemory()}
}

// Run drives iterations of the wrapped step loop against task until a
// completion condition fires or the loop suspends for human input. On
// suspension Run returns immediately with an empty string and a nil error;
// the iteration's AgentState, left in WAITING_INPUT, is not returned, so the
// parked tool call cannot be resumed through this Loop, and Status does not
// report the suspension.
func (l *Loop) Run(ctx context.Context, task string) (string, error) {
	var lastContent string

	for {
		l.iteration++
		l.emit(ctx, event.TypeRalphIterationStart, map[string]any{
			"iteration": l.iteration, "max_iterations": l.cfg.MaxIterations,
		})

		state := agentstate.New(l.cfg.MaxStepsPerIteration)
		state.AppendMessage(llmclient.User(l.buildPrompt(task, lastContent)))

		content, err := l.inner.Run(ctx, state)
		if err != nil {
			return "", err
		}
		if state.Status() == agentstate.StatusWaitingInput {
			l.emit(ctx, event.TypeRalphIterationEnd, map[string]any{"completed": false})
			return "", nil
		}
		lastContent = content

		progressed := l.memory.scan(state.Messages())
		if !progressed {
			l.memory.iterationsIdle++
		} else {
			l.memory.iterationsIdle = 0
		}

		completed, reason := l.evaluateCompletion(content)
		l.emit(ctx, event.TypeRalphIterationEnd, map[string]any{"completed": completed})

		if completed {
			l.completed = true
			l.reason = reason
			l.emit(ctx, event.TypeRalphCompletion, map[string]any{"reason": reason})
			return stripPromiseTag(content), nil
		}
	}
}

func (l *Loop) hasCondition(c CompletionCondition) bool {
	for _, cond := range l.cfg.CompletionConditions {
		if cond == c {
			return true
		}
	}
	return false
}

func (l *Loop) evaluateCompletion(lastContent string) (bool, CompletionReason) {
	if l.hasCondition(ConditionPromiseTag) && l.cfg.CompletionPromise != "" {
		if match := promiseTagRe.FindStringSubmatch(lastContent); match != nil {
			if strings.TrimSpace(match[1]) == l.cfg.CompletionPromise {
				return true, ReasonPromise
			}
		}
	}
	if l.hasCondition(ConditionIdleThreshold) && l.memory.iterationsIdle >= l.cfg.IdleThreshold {
		return true, ReasonIdle
	}
	if l.hasCondition(ConditionMaxIterations) && l.iteration >= l.cfg.MaxIterations {
		return true, ReasonMaxIterations
	}
	return false, ""
}

// buildPrompt applies the configured context strategy to prior output plus
// the working memory summary.
func (l *Loop) buildPrompt(task, priorContent string) string {
	var b strings.Builder
	b.WriteString(task)

	switch l.cfg.ContextStrategy {
	case ContextAll, ContextRecent:
		if priorContent != "" {
			b.WriteString("\n\nPrevious iteration output:\n")
			b.WriteString(priorContent)
		}
	case ContextSummarize:
		if l.memory.Summary != "" {
			b.WriteString("\n\nSummary of prior iterations:\n")
			b.WriteString(l.memory.Summary)
		} else if priorContent != "" {
			b.WriteString("\n\nPrevious iteration output:\n")
			b.WriteString(priorContent)
		}
	}

	summary := l.memory.Summarize()
	if summary.FilesModifiedCount > 0 || len(summary.PendingTODOs) > 0 {
		b.WriteString(fmt.Sprintf("\n\nWorking memory: %d file(s) modified, %d pending TODO(s).",
			summary.FilesModifiedCount, len(summary.PendingTODOs)))
	}
	return b.String()
}

// Status returns a snapshot mirroring the original implementation's
// get_ralph_status() shape.
func (l *Loop) Status() Status {
	return Status{
		Enabled: true,
		State: State{
			Iteration:        l.iteration,
			Completed:        l.completed,
			CompletionReason: l.reason,
		},
		MemorySummary: l.memory.Summarize(),
		Config:        l.cfg,
	}
}

func stripPromiseTag(content string) string {
	return strings.TrimSpace(promiseTagRe.ReplaceAllString(content, ""))
}

func (l *Loop) emit(ctx context.Context, typ event.Type, payload any) {
	if l.bus == nil {
		return
	}
	_ = l.bus.Publish(ctx, event.Event{
		Type:      typ,
		Payload:   payload,
		Step:      l.iteration,
		Timestamp: time.Now(),
	})
}

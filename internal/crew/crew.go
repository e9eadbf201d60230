// Package crew runs a fixed sequence of LLM agents: each task is handled by one
// agent, sees the outputs of the tasks before it, and the last task's output is
// the crew's answer.
package crew

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/suPer8Hu/postcrew/internal/ai"
	"github.com/suPer8Hu/postcrew/internal/post"
)

// Tool is something an agent can consult before answering, e.g. web search.
type Tool interface {
	Name() string
	Run(ctx context.Context, query string) (string, error)
}

type Options struct {
	// DefaultProvider and DefaultModel apply to agents that do not name their own.
	DefaultProvider string
	DefaultModel    string
	Tools           []Tool
	// OutputDir receives task output files. Empty disables writing them.
	OutputDir string
	Logger    *slog.Logger
}

type agent struct {
	name     string
	cfg      AgentConfig
	provider string
	model    string
	tools    []Tool
}

type Crew struct {
	registry  *ai.Registry
	agents    map[string]*agent
	tasks     []TaskConfig
	outputDir string
	log       *slog.Logger
}

func New(cfg Config, registry *ai.Registry, opts Options) (*Crew, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tools := make(map[string]Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	agents := make(map[string]*agent, len(cfg.Agents))
	for name, ac := range cfg.Agents {
		a := &agent{
			name:     name,
			cfg:      ac,
			provider: firstNonEmpty(ac.Provider, opts.DefaultProvider),
			model:    firstNonEmpty(ac.Model, opts.DefaultModel),
		}
		for _, tn := range ac.Tools {
			t, ok := tools[tn]
			if !ok {
				opts.Logger.Warn("agent tool not available, continuing without it", "agent", name, "tool", tn)
				continue
			}
			a.tools = append(a.tools, t)
		}
		if a.provider == "" {
			return nil, fmt.Errorf("crew: agent %s has no provider", name)
		}
		agents[name] = a
	}

	return &Crew{
		registry:  registry,
		agents:    agents,
		tasks:     append([]TaskConfig(nil), cfg.Tasks...),
		outputDir: opts.OutputDir,
		log:       opts.Logger,
	}, nil
}

// Generate adapts the crew to post.Generator.
func (c *Crew) Generate(ctx context.Context, in post.Inputs) (string, error) {
	return c.Kickoff(ctx, in.Map())
}

// Kickoff runs every task in order and returns the final task's output.
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]string) (string, error) {
	var (
		outputs []string
		final   string
	)
	for _, t := range c.tasks {
		a := c.agents[t.Agent]

		provider, err := c.registry.Get(ctx, a.provider, a.model)
		if err != nil {
			return "", fmt.Errorf("task %s: %w", t.Name, err)
		}

		start := time.Now()
		msgs := []ai.Message{
			{Role: ai.RoleSystem, Content: systemPrompt(a.cfg, inputs)},
			{Role: ai.RoleUser, Content: c.taskPrompt(ctx, a, t, inputs, outputs)},
		}
		out, err := provider.Chat(ctx, msgs)
		if err != nil {
			return "", fmt.Errorf("task %s: %w", t.Name, err)
		}
		out = strings.TrimSpace(out)
		c.log.Info("crew task finished", "task", t.Name, "agent", a.name, "cost", time.Since(start), "chars", len(out))

		if t.OutputFile != "" {
			c.writeOutput(t, out)
		}
		outputs = append(outputs, out)
		final = out
	}
	return final, nil
}

func (c *Crew) taskPrompt(ctx context.Context, a *agent, t TaskConfig, inputs map[string]string, prior []string) string {
	var b strings.Builder
	b.WriteString("Current Task: ")
	b.WriteString(interpolate(t.Description, inputs))
	if t.ExpectedOutput != "" {
		b.WriteString("\n\nThis is the expected criteria for your final answer: ")
		b.WriteString(interpolate(t.ExpectedOutput, inputs))
		b.WriteString("\nYou MUST return the actual complete content as the final answer, not a summary.")
	}

	if len(prior) > 0 {
		b.WriteString("\n\nThis is the context you're working with:\n")
		b.WriteString(strings.Join(prior, "\n\n----------\n\n"))
	}

	query := interpolate(firstNonEmpty(t.ToolQuery, "{topic}"), inputs)
	for _, tool := range a.tools {
		res, err := tool.Run(ctx, query)
		if err != nil {
			c.log.Warn("agent tool failed", "task", t.Name, "tool", tool.Name(), "err", err)
			continue
		}
		fmt.Fprintf(&b, "\n\nResults from %s for %q:\n%s", tool.Name(), query, res)
	}
	return b.String()
}

func (c *Crew) writeOutput(t TaskConfig, out string) {
	if c.outputDir == "" {
		return
	}
	path := filepath.Join(c.outputDir, filepath.Base(t.OutputFile))
	if err := os.WriteFile(path, []byte(out+"\n"), 0o644); err != nil {
		c.log.Warn("write task output", "task", t.Name, "path", path, "err", err)
	}
}

func systemPrompt(ac AgentConfig, inputs map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", interpolate(ac.Role, inputs))
	if bs := interpolate(ac.Backstory, inputs); bs != "" {
		b.WriteString("\n")
		b.WriteString(bs)
	}
	if g := interpolate(ac.Goal, inputs); g != "" {
		b.WriteString("\n\nYour personal goal is: ")
		b.WriteString(g)
	}
	return b.String()
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolate replaces {name} with inputs[name]. Unknown names stay as-is.
func interpolate(s string, inputs map[string]string) string {
	s = strings.TrimSpace(s)
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := inputs[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

package crew

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/postcrew/internal/ai"
	"github.com/suPer8Hu/postcrew/internal/post"
)

type scriptedProvider struct {
	mu      sync.Mutex
	calls   [][]ai.Message
	replies []string
	failAt  int // 1-based call number that fails; 0 never
}

func (p *scriptedProvider) Chat(_ context.Context, messages []ai.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	n := len(p.calls)
	if n == p.failAt {
		return "", errors.New("provider timeout")
	}
	return p.replies[n-1], nil
}

type fakeTool struct {
	queries []string
}

func (t *fakeTool) Name() string { return "serper_search" }

func (t *fakeTool) Run(_ context.Context, query string) (string, error) {
	t.queries = append(t.queries, query)
	return "- Agents everywhere (https://news.example)", nil
}

func newTestCrew(t *testing.T, prov *scriptedProvider, opts Options) *Crew {
	t.Helper()
	reg := ai.NewRegistry()
	reg.Register("fake", func(context.Context, string) (ai.Provider, error) {
		return prov, nil
	})

	cfg, err := DefaultConfig()
	require.NoError(t, err)

	opts.DefaultProvider = "fake"
	c, err := New(cfg, reg, opts)
	require.NoError(t, err)
	return c
}

var testInputs = post.Inputs{
	Topic:       "AI",
	Industry:    "Technology",
	Tone:        "professional",
	Audience:    "engineers",
	CurrentYear: "2026",
}

func TestDefaultConfig_TaskOrder(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	names := make([]string, 0, len(cfg.Tasks))
	for _, tc := range cfg.Tasks {
		names = append(names, tc.Name)
	}
	assert.Equal(t, []string{"research_task", "content_creation_task", "content_review_task"}, names)
	assert.Equal(t, []string{"serper_search"}, cfg.Agents["career_coach"].Tools)
	assert.Equal(t, "linkedin_post.md", cfg.Tasks[2].OutputFile)
}

func TestKickoff_RunsTasksInOrderWithContext(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"research notes", "draft post", "  Hello #AI #ML  "}}
	tool := &fakeTool{}
	c := newTestCrew(t, prov, Options{Tools: []Tool{tool}})

	out, err := c.Generate(context.Background(), testInputs)
	require.NoError(t, err)
	assert.Equal(t, "Hello #AI #ML", out)

	require.Len(t, prov.calls, 3)

	research := prov.calls[0]
	assert.Contains(t, research[0].Content, "Technology Career Coach")
	assert.Contains(t, research[1].Content, "Research the latest developments about AI in the Technology industry")
	assert.Contains(t, research[1].Content, "Agents everywhere")
	assert.NotContains(t, research[1].Content, "{topic}")
	assert.Equal(t, []string{"AI Technology trends 2026"}, tool.queries)

	writing := prov.calls[1]
	assert.Contains(t, writing[1].Content, "research notes")
	assert.NotContains(t, writing[1].Content, "Agents everywhere")

	review := prov.calls[2]
	assert.Contains(t, review[1].Content, "research notes")
	assert.Contains(t, review[1].Content, "draft post")
}

func TestKickoff_WrapsProviderError(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"notes", "", ""}, failAt: 2}
	c := newTestCrew(t, prov, Options{})

	_, err := c.Kickoff(context.Background(), testInputs.Map())
	require.Error(t, err)
	assert.Equal(t, "task content_creation_task: provider timeout", err.Error())
	assert.Len(t, prov.calls, 2)
}

func TestKickoff_MissingToolIsSkipped(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"a", "b", "c"}}
	c := newTestCrew(t, prov, Options{})

	out, err := c.Kickoff(context.Background(), testInputs.Map())
	require.NoError(t, err)
	assert.Equal(t, "c", out)
	assert.NotContains(t, prov.calls[0][1].Content, "Results from")
}

func TestKickoff_WritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	prov := &scriptedProvider{replies: []string{"a", "b", "final post"}}
	c := newTestCrew(t, prov, Options{OutputDir: dir})

	_, err := c.Kickoff(context.Background(), testInputs.Map())
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "linkedin_post.md"))
	require.NoError(t, err)
	assert.Equal(t, "final post\n", string(b))
}

func TestKickoff_UnknownProvider(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)
	c, err := New(cfg, ai.NewRegistry(), Options{DefaultProvider: "gemini"})
	require.NoError(t, err)

	_, err = c.Kickoff(context.Background(), testInputs.Map())
	require.ErrorIs(t, err, ai.ErrUnknownProvider)
}

func TestInterpolate(t *testing.T) {
	in := map[string]string{"topic": "AI", "current_year": "2026"}
	assert.Equal(t, "AI in 2026 for {audience}", interpolate("  {topic} in {current_year} for {audience}\n", in))
	assert.Equal(t, "no placeholders", interpolate("no placeholders", in))
}

func TestParseConfig_Errors(t *testing.T) {
	agents := []byte("writer:\n  role: Writer\n")

	_, err := ParseConfig(agents, []byte("- not a mapping\n"))
	require.Error(t, err)

	_, err = ParseConfig(agents, []byte("t1:\n  description: do it\n  agent: ghost\n"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), `unknown agent "ghost"`))

	cfg, err := ParseConfig(agents, []byte("b:\n  description: second\n  agent: writer\na:\n  description: first\n  agent: writer\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Tasks, 2)
	assert.Equal(t, "b", cfg.Tasks[0].Name)
	assert.Equal(t, "a", cfg.Tasks[1].Name)
}

func TestLoadConfig_FromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.yaml"), []byte("writer:\n  role: Writer\n  provider: openai\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.yaml"), []byte("only:\n  description: write about {topic}\n  agent: writer\n"), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Tasks, 1)
	assert.Equal(t, "openai", cfg.Agents["writer"].Provider)

	_, err = LoadConfig(t.TempDir())
	require.Error(t, err)
}

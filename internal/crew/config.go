package crew

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var defaultFS embed.FS

const (
	agentsFile = "agents.yaml"
	tasksFile  = "tasks.yaml"
)

type AgentConfig struct {
	Role      string   `yaml:"role"`
	Goal      string   `yaml:"goal"`
	Backstory string   `yaml:"backstory"`
	Provider  string   `yaml:"provider"`
	Model     string   `yaml:"model"`
	Tools     []string `yaml:"tools"`
}

type TaskConfig struct {
	Name           string `yaml:"-"`
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
	Agent          string `yaml:"agent"`
	// ToolQuery is the query passed to the agent's tools; defaults to {topic}.
	ToolQuery  string `yaml:"tool_query"`
	OutputFile string `yaml:"output_file"`
}

// Config describes the agents and the tasks they run, in execution order.
type Config struct {
	Agents map[string]AgentConfig
	Tasks  []TaskConfig
}

// DefaultConfig returns the built-in research/write/review crew.
func DefaultConfig() (Config, error) {
	sub, err := fs.Sub(defaultFS, "config")
	if err != nil {
		return Config{}, err
	}
	return loadFS(sub)
}

// LoadConfig reads agents.yaml and tasks.yaml from dir. An empty dir means the
// built-in configuration.
func LoadConfig(dir string) (Config, error) {
	if strings.TrimSpace(dir) == "" {
		return DefaultConfig()
	}
	return loadFS(os.DirFS(filepath.Clean(dir)))
}

func loadFS(fsys fs.FS) (Config, error) {
	agentsRaw, err := fs.ReadFile(fsys, agentsFile)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", agentsFile, err)
	}
	tasksRaw, err := fs.ReadFile(fsys, tasksFile)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", tasksFile, err)
	}
	return ParseConfig(agentsRaw, tasksRaw)
}

// ParseConfig decodes agent and task YAML documents. Tasks keep the order in
// which they appear in the document.
func ParseConfig(agentsYAML, tasksYAML []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(agentsYAML, &cfg.Agents); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", agentsFile, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(tasksYAML, &doc); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", tasksFile, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return Config{}, fmt.Errorf("parse %s: expected a mapping of task names", tasksFile)
	}
	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		var tc TaskConfig
		if err := m.Content[i+1].Decode(&tc); err != nil {
			return Config{}, fmt.Errorf("parse task %s: %w", m.Content[i].Value, err)
		}
		tc.Name = m.Content[i].Value
		cfg.Tasks = append(cfg.Tasks, tc)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Tasks) == 0 {
		return errors.New("crew: no tasks configured")
	}
	for _, t := range c.Tasks {
		if strings.TrimSpace(t.Description) == "" {
			return fmt.Errorf("crew: task %s has no description", t.Name)
		}
		if _, ok := c.Agents[t.Agent]; !ok {
			return fmt.Errorf("crew: task %s references unknown agent %q", t.Name, t.Agent)
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

// rosterFile is the on-disk shape of agents.yaml.
type rosterFile struct {
	Agents []models.Agent `yaml:"agents"`
}

// Roster is the set of named agents tasks can be assigned to.
type Roster struct {
	agents map[string]models.Agent
}

// LoadRoster reads the agent roster from path. A missing file yields an
// empty roster: tasks may still name agents not listed here, they just run
// with default settings.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Roster{agents: map[string]models.Agent{}}, nil
		}
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}

	agents := make(map[string]models.Agent, len(rf.Agents))
	for _, a := range rf.Agents {
		if a.Name == "" {
			continue
		}
		agents[a.Name] = a
	}
	return &Roster{agents: agents}, nil
}

// Thinking reports whether extended thinking is enabled for the agent.
// A nil roster enables thinking for no one.
func (r *Roster) Thinking(name string) bool {
	if r == nil {
		return false
	}
	a, ok := r.agents[name]
	return ok && a.Thinking
}

// Has reports whether the agent is listed in the roster.
func (r *Roster) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.agents[name]
	return ok
}

// Agents returns the roster sorted by name.
func (r *Roster) Agents() []models.Agent {
	if r == nil {
		return nil
	}
	out := make([]models.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

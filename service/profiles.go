package service

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/flowagent/types"
	"github.com/BaSui01/flowagent/workflow/nodes"
)

// ProfileSet is a fixed set of agent profiles keyed by id.
type ProfileSet map[string]*nodes.AgentProfile

type profileFile struct {
	Agents []*nodes.AgentProfile `yaml:"agents"`
}

// ParseProfiles decodes a YAML document with a top-level "agents" list.
func ParseProfiles(data []byte) (ProfileSet, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agent profiles: %w", err)
	}
	set := make(ProfileSet, len(f.Agents))
	for i, p := range f.Agents {
		if p == nil || p.ID == "" {
			return nil, fmt.Errorf("agent profile #%d has no id", i+1)
		}
		if _, dup := set[p.ID]; dup {
			return nil, fmt.Errorf("duplicate agent profile %q", p.ID)
		}
		set[p.ID] = p
	}
	return set, nil
}

// LoadProfiles reads a profile file. A missing path yields an empty set.
func LoadProfiles(path string) (ProfileSet, error) {
	if path == "" {
		return ProfileSet{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ResolveAgent returns the profile when it belongs to projectID or to no
// project.
func (s ProfileSet) ResolveAgent(_ context.Context, projectID, agentID string) (*nodes.AgentProfile, error) {
	p, ok := s[agentID]
	if !ok || (p.ProjectID != "" && projectID != "" && p.ProjectID != projectID) {
		return nil, types.Errorf(types.ErrNotFound, "agent %s not found", agentID)
	}
	cp := *p
	return &cp, nil
}

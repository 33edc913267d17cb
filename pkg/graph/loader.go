package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/oralsim/tribunal/pkg/domain"
	"gopkg.in/yaml.v3"
)

// fileGraph mirrors domain.Graph for YAML decoding, with conditions kept
// loose: authors write either a bare kind string or a {kind, role} map.
type fileGraph struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Roles []string   `yaml:"roles"`
	Nodes []fileNode `yaml:"nodes"`
}

type fileNode struct {
	ID       string       `yaml:"id"`
	Type     string       `yaml:"type"`
	Text     string       `yaml:"text"`
	Role     string       `yaml:"role"`
	Start    bool         `yaml:"start"`
	Terminal bool         `yaml:"terminal"`
	Options  []fileOption `yaml:"options"`
}

type fileOption struct {
	ID         string `yaml:"id"`
	Label      string `yaml:"label"`
	Target     string `yaml:"target"`
	Score      int    `yaml:"score"`
	Default    bool   `yaml:"default"`
	Priority   int    `yaml:"priority"`
	Conditions []any  `yaml:"conditions"`
}

// Parse decodes and validates a single YAML graph document.
func Parse(data []byte) (*domain.Graph, error) {
	var raw fileGraph
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse graph yaml: %w", err)
	}

	g := &domain.Graph{
		ID:    raw.ID,
		Title: raw.Title,
		Roles: raw.Roles,
		Nodes: make([]domain.Node, 0, len(raw.Nodes)),
	}

	for _, n := range raw.Nodes {
		node := domain.Node{
			ID:       n.ID,
			Type:     n.Type,
			Text:     n.Text,
			Role:     n.Role,
			Start:    n.Start,
			Terminal: n.Terminal,
		}
		for _, o := range n.Options {
			opt := domain.Option{
				ID:       o.ID,
				Label:    o.Label,
				Target:   o.Target,
				Score:    o.Score,
				Default:  o.Default,
				Priority: o.Priority,
			}
			for _, rawCond := range o.Conditions {
				cond, err := decodeCondition(rawCond)
				if err != nil {
					return nil, fmt.Errorf("graph %s: node %s option %s: %w", raw.ID, n.ID, o.ID, err)
				}
				opt.Conditions = append(opt.Conditions, cond)
			}
			node.Options = append(node.Options, opt)
		}
		g.Nodes = append(g.Nodes, node)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// decodeCondition accepts either shorthand ("requires_registered_user") or a
// structured map ({kind: requires_role, role: judge}).
func decodeCondition(raw any) (domain.Condition, error) {
	switch v := raw.(type) {
	case string:
		return domain.Condition{Kind: v}, nil
	default:
		var cond domain.Condition
		if err := mapstructure.Decode(v, &cond); err != nil {
			return domain.Condition{}, fmt.Errorf("decode condition: %w", err)
		}
		return cond, nil
	}
}

// LoadDir parses every .yaml/.yml file under dir into a registry.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read graphs dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no graph files in %s", dir)
	}

	registry := NewRegistry()
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read graph %s: %w", name, err)
		}
		g, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := registry.Register(g); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return registry, nil
}

package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/switchpilot/switchpilot/internal/fleet"
)

// TopologyStore is the durable record naming each team's active color.
type TopologyStore interface {
	ActiveColor(ctx context.Context, team string) (fleet.Color, error)
	SetActiveColor(ctx context.Context, team string, color fleet.Color) error
}

// ErrTeamNotInTopology is returned when a team has no topology entry.
var ErrTeamNotInTopology = errors.New("team not found in topology")

// topologyDoc mirrors the environment-topology file layout.
type topologyDoc struct {
	Teams []topologyEntry `yaml:"teams"`
}

type topologyEntry struct {
	Name             string `yaml:"name"`
	BlueGreenEnabled bool   `yaml:"blue_green_enabled"`
	ActiveColor      string `yaml:"active_color"`
	BluePort         int    `yaml:"blue_port,omitempty"`
	GreenPort        int    `yaml:"green_port,omitempty"`
}

// FileTopology edits the topology YAML file the way an operator would by
// hand, with guard rails: a timestamped backup before every write, a verify
// read after the write, and a restore from the backup if saving fails.
type FileTopology struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileTopology creates a file-backed topology store.
func NewFileTopology(path string) *FileTopology {
	return &FileTopology{path: path, now: time.Now}
}

// ActiveColor returns the team's currently active color.
func (t *FileTopology) ActiveColor(_ context.Context, teamName string) (fleet.Color, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, err := t.load()
	if err != nil {
		return "", err
	}
	entry := findTeam(doc, teamName)
	if entry == nil {
		return "", fmt.Errorf("%w: %s", ErrTeamNotInTopology, teamName)
	}
	if entry.ActiveColor == "" {
		return fleet.Blue, nil
	}
	return fleet.ParseColor(entry.ActiveColor)
}

// SetActiveColor updates the team's active color. Setting the color a team
// already has is a no-op. The previous file content is kept as a timestamped
// backup and restored if the write fails verification.
func (t *FileTopology) SetActiveColor(_ context.Context, teamName string, color fleet.Color) error {
	if !color.Valid() {
		return fmt.Errorf("%w: %q", fleet.ErrInvalidColor, color)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	doc, err := t.load()
	if err != nil {
		return err
	}
	entry := findTeam(doc, teamName)
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrTeamNotInTopology, teamName)
	}
	if entry.ActiveColor == string(color) {
		return nil
	}

	backupPath, err := t.backup()
	if err != nil {
		return err
	}

	entry.ActiveColor = string(color)

	if err := t.save(doc); err != nil {
		// Best effort: put the previous content back.
		if prev, readErr := os.ReadFile(backupPath); readErr == nil {
			_ = os.WriteFile(t.path, prev, 0o644)
		}
		return fmt.Errorf("save topology: %w", err)
	}

	// Verify the change actually landed.
	verify, err := t.load()
	if err != nil {
		return fmt.Errorf("verify topology: %w", err)
	}
	verified := findTeam(verify, teamName)
	if verified == nil || verified.ActiveColor != string(color) {
		return fmt.Errorf("verify topology: team %s not updated to %s", teamName, color)
	}
	return nil
}

func (t *FileTopology) load() (*topologyDoc, error) {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", t.path, err)
	}
	doc := &topologyDoc{}
	if err := yaml.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", t.path, err)
	}
	return doc, nil
}

func (t *FileTopology) save(doc *topologyDoc) error {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(t.path, raw, 0o644)
}

func (t *FileTopology) backup() (string, error) {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return "", fmt.Errorf("backup topology: %w", err)
	}
	backupPath := fmt.Sprintf("%s.backup_%s", t.path, t.now().Format("20060102_150405"))
	if err := os.WriteFile(backupPath, raw, 0o644); err != nil {
		return "", fmt.Errorf("backup topology: %w", err)
	}
	return backupPath, nil
}

func findTeam(doc *topologyDoc, teamName string) *topologyEntry {
	for i := range doc.Teams {
		if doc.Teams[i].Name == teamName {
			return &doc.Teams[i]
		}
	}
	return nil
}

// Validate checks the topology file for structural problems: duplicate
// team names, unknown colors, and blue/green port collisions. The returned
// slice lists every problem found; an empty slice means the file is sound.
func (t *FileTopology) Validate(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, err := t.load()
	if err != nil {
		return nil, err
	}

	var problems []string
	seen := make(map[string]bool, len(doc.Teams))
	for _, entry := range doc.Teams {
		if entry.Name == "" {
			problems = append(problems, "team with empty name")
			continue
		}
		if seen[entry.Name] {
			problems = append(problems, fmt.Sprintf("duplicate team %q", entry.Name))
		}
		seen[entry.Name] = true

		if entry.ActiveColor != "" {
			if _, err := fleet.ParseColor(entry.ActiveColor); err != nil {
				problems = append(problems, fmt.Sprintf("team %q: invalid active_color %q", entry.Name, entry.ActiveColor))
			}
		}
		if entry.BlueGreenEnabled && entry.BluePort != 0 && entry.BluePort == entry.GreenPort {
			problems = append(problems, fmt.Sprintf("team %q: blue and green share port %d", entry.Name, entry.BluePort))
		}
	}
	return problems, nil
}

// Teams lists the team names present in the topology file.
func (t *FileTopology) Teams(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, err := t.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Teams))
	for _, entry := range doc.Teams {
		names = append(names, entry.Name)
	}
	return names, nil
}

// BlueGreenEnabled reports whether the team has blue/green switching turned
// on in the topology file.
func (t *FileTopology) BlueGreenEnabled(_ context.Context, teamName string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, err := t.load()
	if err != nil {
		return false, err
	}
	entry := findTeam(doc, teamName)
	if entry == nil {
		return false, fmt.Errorf("%w: %s", ErrTeamNotInTopology, teamName)
	}
	return entry.BlueGreenEnabled, nil
}

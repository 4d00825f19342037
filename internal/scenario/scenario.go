// Package scenario loads simulator scenarios from YAML: an engine catalogue, companies,
// depots, groups, template chains and the trains to send through depot arrival.
// Engines are referenced by name everywhere except the catalogue itself.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	"tbtr/pkg/domain"
)

// maxSuggestionDistance bounds the edit distance of a "did you mean" suggestion.
const maxSuggestionDistance = 3

// Scenario is the decoded YAML document.
type Scenario struct {
	Name      string          `yaml:"name"`
	Zoom      int             `yaml:"zoom,omitempty"`
	Companies []Company       `yaml:"companies"`
	Depots    []uint32        `yaml:"depots"`
	Engines   []domain.Engine `yaml:"engines"`
	Groups    []domain.Group  `yaml:"groups"`
	Templates []Template      `yaml:"templates"`
	Trains    []Train         `yaml:"trains"`
}

// Company seeds the bank balance of one owner.
type Company struct {
	Owner domain.OwnerID `yaml:"owner"`
	Money domain.Money   `yaml:"money"`
}

// Unit names an engine and optionally the cargo it carries. Load only applies to trains.
type Unit struct {
	Engine string          `yaml:"engine"`
	Cargo  *domain.CargoID `yaml:"cargo,omitempty"`
	Load   uint16          `yaml:"load,omitempty"`
}

// Template is a template chain and the groups it is assigned to.
type Template struct {
	Owner              domain.OwnerID   `yaml:"owner"`
	Units              []Unit           `yaml:"units"`
	Groups             []domain.GroupID `yaml:"groups,omitempty"`
	ReuseDepotVehicles bool             `yaml:"reuse_depot_vehicles,omitempty"`
	KeepRemainders     bool             `yaml:"keep_remainders,omitempty"`
	RefitAsTemplate    bool             `yaml:"refit_as_template,omitempty"`
}

// Train is a train placed on a tile.
type Train struct {
	Name    string         `yaml:"name,omitempty"`
	Owner   domain.OwnerID `yaml:"owner"`
	Tile    uint32         `yaml:"tile"`
	InDepot bool           `yaml:"in_depot"`
	Stopped bool           `yaml:"stopped,omitempty"`
	Crashed bool           `yaml:"crashed,omitempty"`
	Group   domain.GroupID `yaml:"group,omitempty"`
	Orders  []string       `yaml:"orders,omitempty"`
	Units   []Unit         `yaml:"units"`
}

// ErrInvalid marks scenario documents that decode but do not describe a usable world.
var ErrInvalid = errors.New("invalid scenario")

// Load reads and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(r io.Reader) (*Scenario, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty scenario: %w", ErrInvalid)
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks cross references: engine names, groups and depots.
func (sc *Scenario) Validate() error {
	var problems []string
	engines := make(map[string]struct{}, len(sc.Engines))
	ids := make(map[domain.EngineID]struct{}, len(sc.Engines))
	for _, e := range sc.Engines {
		if e.Name == "" {
			problems = append(problems, fmt.Sprintf("engine %d has no name", e.ID))
			continue
		}
		if _, dup := engines[e.Name]; dup {
			problems = append(problems, fmt.Sprintf("engine name %q used twice", e.Name))
		}
		if _, dup := ids[e.ID]; dup || e.ID == domain.InvalidEngine {
			problems = append(problems, fmt.Sprintf("engine %q has invalid or duplicate id %d", e.Name, e.ID))
		}
		engines[e.Name] = struct{}{}
		ids[e.ID] = struct{}{}
	}
	groups := make(map[domain.GroupID]struct{}, len(sc.Groups))
	for _, g := range sc.Groups {
		if g.ID == domain.DefaultGroup {
			problems = append(problems, fmt.Sprintf("group %q uses reserved id 0", g.Name))
		}
		groups[g.ID] = struct{}{}
	}
	depots := make(map[uint32]struct{}, len(sc.Depots))
	for _, d := range sc.Depots {
		depots[d] = struct{}{}
	}

	checkUnits := func(where string, units []Unit) {
		if len(units) == 0 {
			problems = append(problems, where+" has no units")
		}
		for i, u := range units {
			if _, ok := engines[u.Engine]; !ok {
				problems = append(problems, fmt.Sprintf("%s unit %d: unknown engine %q%s", where, i, u.Engine, sc.suggest(u.Engine)))
			}
		}
	}
	for i, tpl := range sc.Templates {
		where := fmt.Sprintf("template %d", i)
		checkUnits(where, tpl.Units)
		for _, g := range tpl.Groups {
			if _, ok := groups[g]; !ok {
				problems = append(problems, fmt.Sprintf("%s: unknown group %d", where, g))
			}
		}
	}
	for i, tr := range sc.Trains {
		where := fmt.Sprintf("train %d", i)
		if tr.Name != "" {
			where = fmt.Sprintf("train %q", tr.Name)
		}
		checkUnits(where, tr.Units)
		if _, ok := groups[tr.Group]; tr.Group != domain.DefaultGroup && !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown group %d", where, tr.Group))
		}
		if _, ok := depots[tr.Tile]; tr.InDepot && !ok {
			problems = append(problems, fmt.Sprintf("%s: tile %d is not a depot", where, tr.Tile))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// EngineByName returns the catalogue entry called name.
func (sc *Scenario) EngineByName(name string) (domain.Engine, bool) {
	for _, e := range sc.Engines {
		if e.Name == name {
			return e, true
		}
	}
	return domain.Engine{}, false
}

// suggest returns a " (did you mean ...)" hint naming the closest catalogue engine.
func (sc *Scenario) suggest(name string) string {
	type candidate struct {
		name string
		dist int
	}
	var best []candidate
	for _, e := range sc.Engines {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(e.Name))
		if d <= maxSuggestionDistance {
			best = append(best, candidate{e.Name, d})
		}
	}
	if len(best) == 0 {
		return ""
	}
	sort.Slice(best, func(i, j int) bool {
		if best[i].dist != best[j].dist {
			return best[i].dist < best[j].dist
		}
		return best[i].name < best[j].name
	})
	return fmt.Sprintf(" (did you mean %q?)", best[0].name)
}

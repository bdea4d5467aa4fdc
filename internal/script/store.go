package script

import (
	"fmt"

	"github.com/cryguy/phasejs/internal/core"
)

// Key addresses one script slot.
type Key struct {
	Location string
	Phase    core.Phase
	Origin   core.Origin
}

// PhaseTable holds the compiled scripts of every configured location. It is
// populated once by Build and never mutated afterwards. Each location
// gets its own VM, shared by that location's phase scripts.
type PhaseTable struct {
	units     map[Key]*CompiledScript
	vms       []*VM
	locations []string
}

// Plan is a location configuration whose sources have been read and
// checked, ready to be compiled any number of times.
type Plan struct {
	locations []plannedLocation
}

type plannedLocation struct {
	path    string
	scripts []core.ScriptConfig
	sources []Source
}

// Prepare checks locs and reads every script source once.
func Prepare(loader core.SourceLoader, locs []core.LocationConfig) (*Plan, error) {
	p := &Plan{}
	seen := make(map[string]bool, len(locs))

	for _, loc := range locs {
		if seen[loc.Path] {
			return nil, fmt.Errorf("duplicate location %q", loc.Path)
		}
		seen[loc.Path] = true

		pl := plannedLocation{path: loc.Path, scripts: loc.Scripts, sources: make([]Source, len(loc.Scripts))}
		for i, sc := range loc.Scripts {
			for _, prev := range loc.Scripts[:i] {
				if prev.Phase == sc.Phase && prev.Origin == sc.Origin {
					return nil, fmt.Errorf("location %q: %s %s script configured twice", loc.Path, sc.Phase, sc.Origin)
				}
			}
			src, err := Load(loader, sc)
			if err != nil {
				return nil, fmt.Errorf("location %q: %w", loc.Path, err)
			}
			pl.sources[i] = src
		}
		p.locations = append(p.locations, pl)
	}
	return p, nil
}

// Build compiles the plan into a new PhaseTable. The first compile failure
// aborts the build and closes any VM already created.
func (p *Plan) Build(factory core.VMFactory) (*PhaseTable, error) {
	t := &PhaseTable{units: make(map[Key]*CompiledScript)}
	for _, pl := range p.locations {
		t.locations = append(t.locations, pl.path)
		if err := t.addLocation(factory, pl); err != nil {
			t.Close()
			return nil, fmt.Errorf("location %q: %w", pl.path, err)
		}
	}
	return t, nil
}

// BuildTable loads and compiles every script in locs.
func BuildTable(factory core.VMFactory, loader core.SourceLoader, locs []core.LocationConfig) (*PhaseTable, error) {
	p, err := Prepare(loader, locs)
	if err != nil {
		return nil, err
	}
	return p.Build(factory)
}

func (t *PhaseTable) addLocation(factory core.VMFactory, pl plannedLocation) error {
	if len(pl.scripts) == 0 {
		return nil
	}

	vm, err := NewVM(factory)
	if err != nil {
		return err
	}
	t.vms = append(t.vms, vm)

	for i, sc := range pl.scripts {
		cs, err := vm.Compile(pl.sources[i])
		if err != nil {
			return err
		}
		t.units[Key{Location: pl.path, Phase: sc.Phase, Origin: sc.Origin}] = cs
	}
	return nil
}

// Lookup returns the script for the slot, or nil when none is configured.
func (t *PhaseTable) Lookup(location string, phase core.Phase, origin core.Origin) *CompiledScript {
	return t.units[Key{Location: location, Phase: phase, Origin: origin}]
}

// Locations lists the configured location prefixes in configuration order.
func (t *PhaseTable) Locations() []string {
	return t.locations
}

// Len reports the number of compiled scripts.
func (t *PhaseTable) Len() int { return len(t.units) }

// VMs returns the table's VMs, one per location with scripts.
func (t *PhaseTable) VMs() []*VM { return t.vms }

// Compiles reports the total number of units compiled for the table.
func (t *PhaseTable) Compiles() int {
	n := 0
	for _, vm := range t.vms {
		n += vm.Compiles()
	}
	return n
}

// Poisoned reports whether any of the table's VMs was poisoned by a panic.
func (t *PhaseTable) Poisoned() bool {
	for _, vm := range t.vms {
		if vm.Poisoned() {
			return true
		}
	}
	return false
}

// Close releases every VM. The table must not be used afterwards.
func (t *PhaseTable) Close() {
	for _, vm := range t.vms {
		vm.Close()
	}
	t.vms = nil
}

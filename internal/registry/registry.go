// Package registry manages the scorer roster for one experiment. The
// roster is a YAML file: registrations, activation toggles, and deletes
// rewrite it synchronously, and a run takes an immutable snapshot of the
// active scorers at start so mid-run administrative changes only apply
// to the next run.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tracewatch/tracewatch/internal/models"
	"github.com/tracewatch/tracewatch/internal/scorers"
)

// ErrNotFound is returned when an operation names an unknown scorer.
var ErrNotFound = errors.New("scorer not found")

// Handle is the administrative view of one registered scorer.
type Handle struct {
	Name         string            `json:"name"`
	Kind         models.ScorerKind `json:"kind"`
	ValueType    models.ValueType  `json:"value_type"`
	Active       bool              `json:"active"`
	SamplingRate float64           `json:"sampling_rate"`
}

// rosterFile is the on-disk layout.
type rosterFile struct {
	ExperimentID string                    `yaml:"experiment_id"`
	Scorers      []models.ScorerDefinition `yaml:"scorers"`
}

// Registry is the scorer roster for one experiment.
type Registry struct {
	path         string
	experimentID string

	mu   sync.Mutex
	defs map[string]*models.ScorerDefinition
}

// Open loads the roster at path, creating an empty one if the file does
// not exist yet. The file's experiment id must match when present.
func Open(path, experimentID string) (*Registry, error) {
	r := &Registry{
		path:         path,
		experimentID: experimentID,
		defs:         make(map[string]*models.ScorerDefinition),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading scorer roster: %w", err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing scorer roster %s: %w", path, err)
	}
	if file.ExperimentID != "" && file.ExperimentID != experimentID {
		return nil, fmt.Errorf("roster %s belongs to experiment %q, not %q", path, file.ExperimentID, experimentID)
	}

	for i := range file.Scorers {
		def := file.Scorers[i]
		if err := scorers.ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("roster entry %q: %w", def.Name, err)
		}
		r.defs[def.Name] = &def
	}

	return r, nil
}

// Register creates or updates a scorer definition. Registration is
// idempotent on name: an existing scorer keeps its activation state and
// sampling rate while the rest of the definition is replaced. Validation
// covers the implementation-level checks too (stock judge ids, code
// scorer ids and params), so a registered definition never fails scorer
// construction later. Validation failures leave the roster untouched.
func (r *Registry) Register(def models.ScorerDefinition) (Handle, error) {
	if err := scorers.ValidateDefinition(def); err != nil {
		return Handle{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.defs[def.Name]; ok {
		def.Active = prev.Active
		def.SamplingRate = prev.SamplingRate
	}

	stored := def.Clone()
	r.defs[def.Name] = &stored

	if err := r.persistLocked(); err != nil {
		delete(r.defs, def.Name)
		return Handle{}, err
	}
	return handleOf(&stored), nil
}

// List returns all registered scorers, sorted by name.
func (r *Registry) List() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := r.sortedLocked()
	handles := make([]Handle, 0, len(defs))
	for _, def := range defs {
		handles = append(handles, handleOf(&def))
	}
	return handles
}

// Start activates a scorer with the given sampling rate.
func (r *Registry) Start(name string, samplingRate float64) error {
	if samplingRate < 0 || samplingRate > 1 {
		return &models.ValidationError{Field: "sampling_rate", Msg: fmt.Sprintf("sampling_rate must be in [0,1], got %v", samplingRate)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("starting %q: %w", name, ErrNotFound)
	}

	prevActive, prevRate := def.Active, def.SamplingRate
	def.Active = true
	def.SamplingRate = samplingRate

	if err := r.persistLocked(); err != nil {
		def.Active, def.SamplingRate = prevActive, prevRate
		return err
	}
	return nil
}

// Stop deactivates a scorer. Its definition and last sampling rate stay
// registered.
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("stopping %q: %w", name, ErrNotFound)
	}

	prev := def.Active
	def.Active = false

	if err := r.persistLocked(); err != nil {
		def.Active = prev
		return err
	}
	return nil
}

// Delete removes a scorer definition entirely.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("deleting %q: %w", name, ErrNotFound)
	}

	delete(r.defs, name)
	if err := r.persistLocked(); err != nil {
		r.defs[name] = def
		return err
	}
	return nil
}

// Snapshot returns deep copies of the active scorer definitions, sorted
// by name. A run holds its snapshot for the whole run.
func (r *Registry) Snapshot() []models.ScorerDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.ScorerDefinition
	for _, def := range r.sortedLocked() {
		if def.Active {
			out = append(out, def.Clone())
		}
	}
	return out
}

func (r *Registry) sortedLocked() []models.ScorerDefinition {
	defs := make([]models.ScorerDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def.Clone())
	}
	models.SortDefinitions(defs)
	return defs
}

// persistLocked rewrites the roster file. Write-to-temp plus rename so a
// crash mid-write cannot leave a torn roster.
func (r *Registry) persistLocked() error {
	file := rosterFile{
		ExperimentID: r.experimentID,
		Scorers:      r.sortedLocked(),
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("serializing scorer roster: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating roster directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing scorer roster: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replacing scorer roster: %w", err)
	}
	return nil
}

func handleOf(def *models.ScorerDefinition) Handle {
	return Handle{
		Name:         def.Name,
		Kind:         def.Kind,
		ValueType:    def.ValueType,
		Active:       def.Active,
		SamplingRate: def.SamplingRate,
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/valter-silva-au/meridian/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrScenarioNotFound is returned by Get for an unknown scenario id.
var ErrScenarioNotFound = errors.New("scenario not found")

// reloadDebounce groups the burst of events an editor produces on save.
const reloadDebounce = 200 * time.Millisecond

// ScenarioStore holds the scenario scripts loaded from a directory of YAML
// files, one scenario per file.
type ScenarioStore interface {
	// Load reads and validates every scenario file. On error the previously
	// loaded set is kept.
	Load() error
	Get(id string) (*models.Scenario, error)
	List() []models.ScenarioSummary
	All() []*models.Scenario
	// Watch reloads the directory whenever a scenario file changes, until
	// ctx is done. onReload, if set, receives the outcome of each reload.
	Watch(ctx context.Context, onReload func(error)) error
}

type fileScenarioStore struct {
	dir string

	mu        sync.RWMutex
	scenarios []*models.Scenario
	byID      map[string]*models.Scenario
}

// NewScenarioStore creates a ScenarioStore over the given directory.
func NewScenarioStore(dir string) ScenarioStore {
	return &fileScenarioStore{
		dir:  dir,
		byID: make(map[string]*models.Scenario),
	}
}

func (s *fileScenarioStore) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("loading scenarios from %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isScenarioFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var loaded []*models.Scenario
	byID := make(map[string]*models.Scenario)
	var errs []string
	for _, name := range names {
		sc, err := readScenario(filepath.Join(s.dir, name))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if prev, ok := byID[sc.ID]; ok {
			errs = append(errs, fmt.Sprintf("%s: duplicate scenario id %q (also %q)", name, sc.ID, prev.Title))
			continue
		}
		if problems := ValidateScenario(sc); len(problems) > 0 {
			errs = append(errs, fmt.Sprintf("%s: %s", name, strings.Join(problems, "; ")))
			continue
		}
		byID[sc.ID] = sc
		loaded = append(loaded, sc)
	}
	if len(errs) > 0 {
		return fmt.Errorf("loading scenarios from %s:\n  - %s", s.dir, strings.Join(errs, "\n  - "))
	}

	s.mu.Lock()
	s.scenarios = loaded
	s.byID = byID
	s.mu.Unlock()
	return nil
}

func (s *fileScenarioStore) Get(id string) (*models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("scenario %q: %w", id, ErrScenarioNotFound)
	}
	return sc, nil
}

func (s *fileScenarioStore) List() []models.ScenarioSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ScenarioSummary, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		out = append(out, sc.Summary())
	}
	return out
}

func (s *fileScenarioStore) All() []*models.Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Scenario(nil), s.scenarios...)
}

func (s *fileScenarioStore) Watch(ctx context.Context, onReload func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating scenario watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isScenarioFile(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if onReload != nil {
				onReload(fmt.Errorf("scenario watcher: %w", err))
			}
		case <-debounce.C:
			err := s.Load()
			if onReload != nil {
				onReload(err)
			}
		}
	}
}

func isScenarioFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func readScenario(path string) (*models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc models.Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return &sc, nil
}

// ValidateScenario returns every problem found in sc; an empty result means
// the scenario can be played.
func ValidateScenario(sc *models.Scenario) []string {
	var problems []string
	if strings.TrimSpace(sc.ID) == "" {
		problems = append(problems, "id is required")
	}
	if len(sc.Messages) == 0 {
		problems = append(problems, "at least one message is required")
	}
	for i, m := range sc.Messages {
		if m.Role != models.SenderCustomer && m.Role != models.SenderAgent {
			problems = append(problems, fmt.Sprintf("messages[%d]: role must be customer or agent, got %q", i, m.Role))
		}
		if strings.TrimSpace(m.Text) == "" {
			problems = append(problems, fmt.Sprintf("messages[%d]: text is required", i))
		}
		if m.DelayMs < 0 {
			problems = append(problems, fmt.Sprintf("messages[%d]: delay_ms must not be negative", i))
		}
	}

	n := len(sc.Messages)
	inRange := func(i int) bool { return i >= 0 && i < n }
	if !inRange(sc.QueryTriggerIndex) {
		problems = append(problems, fmt.Sprintf("query_trigger_index %d is out of range", sc.QueryTriggerIndex))
	} else if sc.Messages[sc.QueryTriggerIndex].Role != models.SenderCustomer {
		problems = append(problems, fmt.Sprintf("query_trigger_index %d must point at a customer message", sc.QueryTriggerIndex))
	}
	for _, f := range sc.FollowUps {
		if !inRange(f.AfterMessageIndex) {
			problems = append(problems, fmt.Sprintf("follow_ups: after_message_index %d is out of range", f.AfterMessageIndex))
		}
	}
	for _, r := range sc.ReplyTriggers {
		if !inRange(r.AfterMessageIndex) {
			problems = append(problems, fmt.Sprintf("reply_triggers: after_message_index %d is out of range", r.AfterMessageIndex))
		}
	}
	for _, g := range sc.GraphTriggers {
		if !inRange(g.AfterMessageIndex) {
			problems = append(problems, fmt.Sprintf("graph_triggers: after_message_index %d is out of range", g.AfterMessageIndex))
		}
	}
	if sc.IsGapScenario && strings.TrimSpace(sc.TicketNumber) == "" {
		problems = append(problems, "gap scenarios need a ticket_number")
	}
	return problems
}

// LoadGraph reads the base knowledge graph. A missing file is an empty graph.
func LoadGraph(path string) (models.KnowledgeGraph, error) {
	var g models.KnowledgeGraph
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return g, fmt.Errorf("reading knowledge graph: %w", err)
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return g, fmt.Errorf("parsing knowledge graph %s: %w", path, err)
	}
	return g, nil
}

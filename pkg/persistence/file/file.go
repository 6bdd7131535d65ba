// Package file provides file-based persistence for development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/taskora/automation/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system,
// one JSON document per record. It exists so tests and local development need
// no running database; the PostgreSQL adapter is the production path.
type Persistence struct {
	root string

	// mu serializes claim operations so the status compare-and-swap is
	// atomic within the process, matching the row-level guarantee of the
	// SQL adapter.
	mu sync.Mutex

	workflowRepo  *WorkflowRepository
	ruleRepo      *RuleRepository
	executionRepo *ExecutionRepository
	templateRepo  *TemplateRepository
	scheduleRepo  *ScheduleRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflowRepo = &WorkflowRepository{store: p}
	p.ruleRepo = &RuleRepository{store: p}
	p.executionRepo = &ExecutionRepository{store: p}
	p.templateRepo = &TemplateRepository{store: p}
	p.scheduleRepo = &ScheduleRepository{store: p}

	return p
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) Rules() persistence.RuleRepository {
	return p.ruleRepo
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) Schedules() persistence.ScheduleRepository {
	return p.scheduleRepo
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) write(kind, id string, record any) error {
	dir := path.Join(p.root, kind)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	return os.WriteFile(path.Join(dir, id+".json"), body, 0o644)
}

func (p *Persistence) read(kind, id string, record any, notFound error) error {
	body, err := os.ReadFile(path.Join(p.root, kind, id+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound
		}

		return err
	}

	return json.Unmarshal(body, record)
}

func (p *Persistence) delete(kind, id string, notFound error) error {
	err := os.Remove(path.Join(p.root, kind, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return notFound
	}

	return err
}

func (p *Persistence) ids(kind string) ([]string, error) {
	root := os.DirFS(path.Join(p.root, kind))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

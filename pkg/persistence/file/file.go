// Package file provides file-based persistence, one JSON document per
// entity. It backs local development and the test suites; production runs
// on the postgresql implementation.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leadmill/leadmill/pkg/persistence"
)

// Persistence implements persistence.Persistence on a directory tree:
// <root>/workflows, <root>/leads, <root>/tasks, <root>/messages.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	leadRepo     *LeadRepository
	taskRepo     *TaskRepository
	messageRepo  *MessageRepository
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: &WorkflowRepository{dir: collection{path: filepath.Join(cleanRoot, "workflows")}},
		leadRepo:     &LeadRepository{dir: collection{path: filepath.Join(cleanRoot, "leads")}},
		taskRepo:     &TaskRepository{dir: collection{path: filepath.Join(cleanRoot, "tasks")}},
		messageRepo:  &MessageRepository{dir: collection{path: filepath.Join(cleanRoot, "messages")}},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository { return p.workflowRepo }

func (p *Persistence) LeadRepository() persistence.LeadRepository { return p.leadRepo }

func (p *Persistence) TaskRepository() persistence.TaskRepository { return p.taskRepo }

func (p *Persistence) MessageRepository() persistence.MessageRepository { return p.messageRepo }

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// collection is one entity directory with a guarding mutex. JSON documents
// are written whole; the mutex serializes read-modify-write sequences.
type collection struct {
	mu   sync.RWMutex
	path string
}

func (c *collection) write(id string, entity any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.path, err)
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", id, err)
	}

	if err := os.WriteFile(c.file(id), data, 0o644); err != nil {
		return fmt.Errorf("failed to write entity %s: %w", id, err)
	}

	return nil
}

func (c *collection) read(id string, entity any) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.file(id))
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read entity %s: %w", id, err)
	}

	if err := json.Unmarshal(data, entity); err != nil {
		return false, fmt.Errorf("failed to unmarshal entity %s: %w", id, err)
	}

	return true, nil
}

func (c *collection) remove(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.file(id))
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to delete entity %s: %w", id, err)
	}

	return true, nil
}

// ids lists every entity ID present in the collection.
func (c *collection) ids() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.path, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

func (c *collection) file(id string) string {
	return filepath.Join(c.path, id+".json")
}

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stepflow-io/stepflow/internal/engine"
	"github.com/stepflow-io/stepflow/internal/validation"
	"github.com/stepflow-io/stepflow/pkg/schema"
)

func sortStrings(s []string) { sort.Strings(s) }

// NewDirCatalog loads every *.json workflow definition under dir into a
// MemoryCatalog. Files are parsed and validated concurrently; any invalid
// file fails the whole load, so a booted catalog is known-good.
func NewDirCatalog(ctx context.Context, dir string) (*MemoryCatalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir: %w", err)
	}

	v, err := validation.NewDefinitionValidator()
	if err != nil {
		return nil, err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)

	defs := make([]*schema.WorkflowDefinition, len(entries))
	for i, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		i := i
		path := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			def, err := loadDefinition(path, v)
			if err != nil {
				return err
			}
			defs[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cat := &MemoryCatalog{
		validator: v,
		defs:      make(map[string]*schema.WorkflowDefinition),
	}
	for _, def := range defs {
		if def == nil {
			continue
		}
		if _, exists := cat.defs[def.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeConflict,
				"workflow %q defined more than once", def.ID)
		}
		cat.defs[def.ID] = def
	}
	return cat, nil
}

func loadDefinition(path string, v *validation.DefinitionValidator) (*schema.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var def schema.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidDefinition,
			"%s: invalid JSON: %s", filepath.Base(path), err.Error()).WithCause(err)
	}
	if err := v.ValidateDefinition(&def); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if _, err := engine.BuildGraph(&def); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &def, nil
}

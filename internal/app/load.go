package app

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/fsutil"
	"github.com/vk/flowloop/internal/model"
)

// LoadWorkflow reads the workflow at path. A .json file is an editor
// document; anything else goes to the configured loader.
func (a *App) LoadWorkflow(ctx context.Context, path string) (*model.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading workflow...", "path", path)

	var (
		wf  *model.Workflow
		err error
	)
	if fsutil.Ext(path) == ".json" {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read workflow: %w", err)
		}
		wf, err = model.ParseDocument(data)
	} else {
		wf, err = a.loader.LoadWorkflow(ctx, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow '%s': %w", path, err)
	}

	logger.Info("Workflow loaded.", "name", wf.Name, "nodes", len(wf.Nodes), "edges", len(wf.Edges))
	return wf, nil
}

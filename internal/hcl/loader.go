package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/flowloop/internal/config"
	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/fsutil"
	"github.com/vk/flowloop/internal/model"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct {
	evalCtx *hcl.EvalContext
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a loader whose expressions can read the process
// environment.
func NewLoader() *Loader {
	return &Loader{evalCtx: defaultEvalContext()}
}

// LoadWorkflow reads a workflow from a single .hcl file or from every .hcl
// file below a directory, merged in path order.
func (l *Loader) LoadWorkflow(ctx context.Context, path string) (*model.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading workflow.", "path", path)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find workflow files in %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl workflow files found in %s", path)
	}

	parser := hclparse.NewParser()
	wf := &model.Workflow{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		if err := decodeWorkflowFile(hclFile.Body, l.evalCtx, wf); err != nil {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, err)
		}
	}
	if len(wf.Nodes) == 0 {
		return nil, model.ErrEmptyWorkflow
	}

	logger.Debug("Workflow loaded.", "name", wf.Name, "files", len(files), "nodes", len(wf.Nodes), "edges", len(wf.Edges))
	return wf, nil
}

// LoadSettings reads a settings file.
func (l *Loader) LoadSettings(ctx context.Context, path string) (*config.Settings, error) {
	ctxlog.FromContext(ctx).Debug("Loading settings file.", "path", path)

	hclFile, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, diags)
	}
	var file settingsFile
	if diags := gohcl.DecodeBody(hclFile.Body, l.evalCtx, &file); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode settings file %s: %w", path, diags)
	}
	s, err := file.settings()
	if err != nil {
		return nil, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}

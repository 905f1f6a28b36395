// Package roundfile loads round files: HCL documents describing which passes
// run on which documents, how they are ordered, and which edits land while
// the round is running.
//
//	scheduler {
//	  workers    = 4
//	  max_rounds = 3
//	}
//
//	document "main.go" {
//	  pass "parse" {
//	    collect_time = "20ms"
//	    result       = { tokens = 120 }
//	  }
//	  pass "highlight" {
//	    completion_after = ["parse"]
//	    result           = "${passes.parse.tokens} tokens in ${doc.name}"
//	  }
//	}
//
//	edit "main.go" {
//	  after = "10ms"
//	}
package roundfile

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/fsutil"
	"github.com/specialistvlad/passgrid/internal/nodeid"
	"github.com/specialistvlad/passgrid/internal/pass"
)

// Loader reads round files.
type Loader struct{}

// NewLoader creates a new round file loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under paths and merges them into one
// model. Documents declared in several files have their passes appended in
// file order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Round file loader started.", "path_count", len(paths))

	files, err := fsutil.FindFilesByExtension(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl round files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := &Model{}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if err := merge(model, &root); err != nil {
			return nil, fmt.Errorf("invalid round file %s: %w", file, err)
		}
	}

	logger.Debug("Round file loading complete.", "documents", len(model.Documents), "passes", model.PassCount(), "edits", len(model.Edits))
	return model, nil
}

func merge(model *Model, root *fileRoot) error {
	if s := root.Scheduler; s != nil {
		if s.Workers != nil {
			if *s.Workers < 1 {
				return fmt.Errorf("scheduler.workers must be at least 1, got %d", *s.Workers)
			}
			model.Scheduler.Workers = *s.Workers
		}
		if s.MaxRounds != nil {
			if *s.MaxRounds < 1 {
				return fmt.Errorf("scheduler.max_rounds must be at least 1, got %d", *s.MaxRounds)
			}
			model.Scheduler.MaxRounds = *s.MaxRounds
		}
	}

	for _, block := range root.Documents {
		doc := model.Document(block.Name)
		if doc == nil {
			doc = &Document{Name: block.Name}
			model.Documents = append(model.Documents, doc)
		}
		for _, pb := range block.Passes {
			p, err := translatePass(pb)
			if err != nil {
				return fmt.Errorf("document %q: %w", block.Name, err)
			}
			doc.Passes = append(doc.Passes, p)
		}
	}

	for _, eb := range root.Edits {
		after, err := time.ParseDuration(eb.After)
		if err != nil {
			return fmt.Errorf("edit %q: invalid after: %w", eb.Document, err)
		}
		model.Edits = append(model.Edits, Edit{Document: eb.Document, After: after})
	}
	return nil
}

func translatePass(pb *passBlock) (*Pass, error) {
	id := pass.ID(pb.ID)
	if err := nodeid.Validate(id); err != nil {
		return nil, err
	}
	p := &Pass{
		ID:              id,
		StartAfter:      toIDs(pb.StartAfter),
		CompletionAfter: toIDs(pb.CompletionAfter),
		Fail:            pb.Fail,
		Result:          pb.Result,
	}
	if pb.CollectTime != "" {
		d, err := time.ParseDuration(pb.CollectTime)
		if err != nil {
			return nil, fmt.Errorf("pass %q: invalid collect_time: %w", pb.ID, err)
		}
		p.CollectTime = d
	}
	return p, nil
}

func toIDs(raw []string) []pass.ID {
	if len(raw) == 0 {
		return nil
	}
	out := make([]pass.ID, len(raw))
	for i, s := range raw {
		out[i] = pass.ID(s)
	}
	return out
}

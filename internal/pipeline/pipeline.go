// Package pipeline wires the export run together: aggregate, group, write.
package pipeline

import (
	"fmt"
	"log"

	"github.com/tschwarz/discourse-export/internal/config"
	"github.com/tschwarz/discourse-export/internal/discourse"
	"github.com/tschwarz/discourse-export/internal/export"
	"github.com/tschwarz/discourse-export/internal/group"
	"github.com/tschwarz/discourse-export/internal/report"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full export run.
type Result struct {
	Steps  []StepResult
	Topics int
}

// Failed reports whether the run aborted before producing output.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline runs the three-step export: aggregate, group, report.
type Pipeline struct {
	cfg *config.Config
	api export.API
}

// New creates a pipeline with a real Discourse client built from the config.
func New(cfg *config.Config) *Pipeline {
	client := discourse.New(cfg.Discourse.URL, cfg.Discourse.APIKey, cfg.Discourse.APIUsername, cfg.Timeout())
	return &Pipeline{cfg: cfg, api: client}
}

// NewWithAPI creates a pipeline with an explicit API implementation.
func NewWithAPI(cfg *config.Config, api export.API) *Pipeline {
	return &Pipeline{cfg: cfg, api: api}
}

// Run executes the export. Only two failures abort it: the categories fetch
// (step 1) and a total inability to write output (step 3); everything in
// between degrades to partial data.
func (p *Pipeline) Run() *Result {
	r := &Result{}

	log.Println("Step 1/3: Aggregating topics...")
	agg := export.New(p.api, p.cfg)
	result, err := agg.Run()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Aggregate", Err: fmt.Errorf("fetching categories: %w", err)})
		return r
	}
	r.Topics = len(result.Topics)
	r.Steps = append(r.Steps, StepResult{
		Name: "Aggregate",
		Summary: fmt.Sprintf("%d categories, %d pages, %d topics kept of %d seen (%d enrichment errors)",
			len(result.Categories), result.Stats.PagesFetched, result.Stats.TopicsKept,
			result.Stats.TopicsSeen, result.Stats.EnrichmentErrors),
	})

	log.Println("Step 2/3: Grouping by category...")
	groups := group.ByCategory(result.Topics)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Group",
		Summary: fmt.Sprintf("%d categories with topics", len(groups)),
	})

	log.Println("Step 3/3: Writing reports...")
	if err := report.WriteFiles(p.cfg.Output.Dir, result.Categories, result.Topics, groups); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Report", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Report",
		Summary: fmt.Sprintf("wrote %s, %s, %s", report.TextFile, report.CSVFile, report.JSONFile),
	})

	return r
}

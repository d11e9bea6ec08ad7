package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/cardtpl/internal/formatter"
	"github.com/desertthunder/cardtpl/internal/models"
)

// ExportOpts contains configuration for template exports.
type ExportOpts struct {
	Format     formatter.Format // Export format: text (content only), markdown, json, yaml, csv
	OutputDir  string           // Base output directory (default: templates_export_{epoch})
	NumWorkers int              // Concurrent workers (default: 4)
}

// TemplateExportResult is the result of exporting a single template.
type TemplateExportResult struct {
	TemplateID   string
	TemplateName string
	Path         string
	Success      bool
	Error        error
}

// ExportResult contains the results of [BindingEngine.ExportTemplates].
type ExportResult struct {
	TotalTemplates    int
	SuccessfulExports int
	FailedExports     int
	OutputDirectory   string
	ManifestPath      string
	Results           []TemplateExportResult
}

type manifestEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	File  string `json:"file,omitempty"`
	Error string `json:"error,omitempty"`
}

type manifest struct {
	ExportedAt time.Time       `json:"exportedAt"`
	Format     string          `json:"format"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Templates  []manifestEntry `json:"templates"`
}

// ExportTemplates writes one file per template into a directory using a worker pool, then writes
// export_manifest.json summarizing the results. Individual failures do not stop the export.
func (e *BindingEngine) ExportTemplates(ctx context.Context, prog chan<- ProgressUpdate, templates []models.Template, opts ExportOpts) (*ExportResult, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("templates_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultConcurrency
	}
	opts.NumWorkers = min(opts.NumWorkers, maxConcurrency)
	if opts.Format == "" {
		opts.Format = formatter.FormatText
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &ExportResult{
		TotalTemplates:  len(templates),
		OutputDirectory: opts.OutputDir,
		Results:         make([]TemplateExportResult, 0, len(templates)),
	}

	jobs := make(chan models.Template, len(templates))
	results := make(chan TemplateExportResult, len(templates))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	for _, t := range templates {
		jobs <- t
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(templates), res.TemplateName, res.Path))
		} else {
			result.FailedExports++
			e.sendProgress(prog, exportFailedUpdate(completed, len(templates), res.TemplateName, res.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := writeManifest(result, opts.Format, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// exportWorker is a worker goroutine that exports templates from the jobs channel.
func (e *BindingEngine) exportWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan models.Template, results chan<- TemplateExportResult, opts ExportOpts) {
	defer wg.Done()

	for t := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res := TemplateExportResult{TemplateID: t.ID, TemplateName: t.Name}
		path, err := formatter.WriteTemplateFile(t, opts.OutputDir, opts.Format)
		if err != nil {
			res.Error = err
		} else {
			res.Path = path
			res.Success = true
		}
		results <- res
	}
}

func writeManifest(result *ExportResult, format formatter.Format, path string) error {
	m := manifest{
		ExportedAt: time.Now().UTC(),
		Format:     string(format),
		Total:      result.TotalTemplates,
		Succeeded:  result.SuccessfulExports,
		Failed:     result.FailedExports,
		Templates:  make([]manifestEntry, 0, len(result.Results)),
	}
	for _, r := range result.Results {
		entry := manifestEntry{ID: r.TemplateID, Name: r.TemplateName}
		if r.Path != "" {
			entry.File = filepath.Base(r.Path)
		}
		if r.Error != nil {
			entry.Error = r.Error.Error()
		}
		m.Templates = append(m.Templates, entry)
	}

	data, err := formatter.MarshalJSON(m, true)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

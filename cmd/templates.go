package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/cardtpl/internal/formatter"
	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/desertthunder/cardtpl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// TemplatesList loads and prints templates, optionally narrowed by sheet type or a fuzzy name query.
func (r *Runner) TemplatesList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s := r.templateStore()
	templates, err := s.LoadTemplates(ctx, cmd.String("sheet-type"))
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if query := cmd.String("search"); query != "" {
		templates = s.SearchTemplates(query)
	}

	r.logger.Debug("listing templates", "count", len(templates))
	return formatter.WriteTemplates(r.output, format, templates)
}

// TemplatesShow prints one template.
func (r *Runner) TemplatesShow(ctx context.Context, cmd *cli.Command) error {
	t, err := r.lookupTemplate(ctx, cmd.StringArg("id"))
	if err != nil {
		return err
	}

	if cmd.Bool("render") {
		out, err := formatter.RenderContent(t.Content, 0)
		if err != nil {
			return err
		}
		return r.writePlain("%s", out)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	data, err := formatter.EncodeTemplate(format, t)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", data)
}

// TemplatesCreate creates a template from flags.
func (r *Runner) TemplatesCreate(ctx context.Context, cmd *cli.Command) error {
	content, _, err := readContent(cmd)
	if err != nil {
		return err
	}

	payload := models.TemplatePayload{
		Name:      cmd.String("name"),
		SheetType: cmd.String("sheet-type"),
		Content:   content,
	}
	if cmd.IsSet("global-default") {
		payload.IsGlobalDefault = models.Bool(cmd.Bool("global-default"))
	}
	if cmd.IsSet("sheet-default") {
		payload.IsSheetDefault = models.Bool(cmd.Bool("sheet-default"))
	}
	if err := payload.Normalize(); err != nil {
		return err
	}

	created, err := r.templateStore().CreateTemplate(ctx, payload)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	if created == nil {
		r.logger.Warn("server returned no template")
		return nil
	}

	r.logger.Info("template created", "id", created.ID, "name", created.Name)
	return r.writeTemplateResult(cmd, "Created", *created)
}

// TemplatesUpdate applies the flags that were set as a partial update.
func (r *Runner) TemplatesUpdate(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: template id", shared.ErrMissingArgument)
	}

	var patch models.TemplatePatch
	if cmd.IsSet("name") {
		patch.Name = models.String(cmd.String("name"))
	}
	if cmd.IsSet("sheet-type") {
		patch.SheetType = models.String(cmd.String("sheet-type"))
	}
	if content, ok, err := readContent(cmd); err != nil {
		return err
	} else if ok {
		patch.Content = models.String(content)
	}
	if cmd.IsSet("global-default") {
		patch.IsGlobalDefault = models.Bool(cmd.Bool("global-default"))
	}
	if cmd.IsSet("sheet-default") {
		patch.IsSheetDefault = models.Bool(cmd.Bool("sheet-default"))
	}

	if patch == (models.TemplatePatch{}) {
		return fmt.Errorf("%w: nothing to update", shared.ErrMissingArgument)
	}
	if err := patch.Normalize(); err != nil {
		return err
	}

	updated, err := r.templateStore().UpdateTemplate(ctx, id, patch)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if updated == nil {
		r.logger.Warn("server returned no template", "id", id)
		return nil
	}

	return r.writeTemplateResult(cmd, "Updated", *updated)
}

// TemplatesDelete deletes a template.
func (r *Runner) TemplatesDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: template id", shared.ErrMissingArgument)
	}

	if err := r.templateStore().DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	r.logger.Info("template deleted", "id", id)
	return r.writePlain("✓ Deleted template %s\n", id)
}

// TemplatesSetDefault flags a template as global or sheet default.
func (r *Runner) TemplatesSetDefault(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: template id", shared.ErrMissingArgument)
	}

	scope := models.DefaultScope(cmd.String("scope"))
	if !scope.Valid() {
		return fmt.Errorf("%w: scope must be global or sheet, got %q", shared.ErrInvalidFlag, scope)
	}

	s := r.templateStore()
	if _, err := s.SetTemplateDefault(ctx, id, scope); err != nil {
		return fmt.Errorf("failed to set default: %w", err)
	}

	t, ok := s.Template(id)
	if !ok {
		return r.writePlain("✓ %s is now the %s default\n", id, scope)
	}
	return r.writePlain("✓ %s is now the %s default (%s)\n", t.Name, scope, formatter.DefaultFlags(t))
}

// TemplatesExport writes every template to a directory with a manifest.
func (r *Runner) TemplatesExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	templates, err := r.templateStore().LoadTemplates(ctx, cmd.String("sheet-type"))
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	r.logger.Info("exporting templates", "count", len(templates), "format", format)

	progress, wait := r.progressPrinter()
	result, err := r.engine(0).ExportTemplates(ctx, progress, templates, tasks.ExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
	})
	wait()
	if err != nil {
		return err
	}

	r.writePlainln("")
	r.writePlainHeader("Export Complete")
	r.writePlain("Directory: %s\n", result.OutputDirectory)
	r.writePlain("Exported: %d/%d\n", result.SuccessfulExports, result.TotalTemplates)
	r.writePlain("Manifest: %s\n", result.ManifestPath)

	if result.FailedExports > 0 {
		r.writePlain("\nFailed to export %d templates:\n", result.FailedExports)
		for _, res := range result.Results {
			if res.Error != nil {
				r.writePlain("  - %s: %v\n", res.TemplateName, res.Error)
			}
		}
	}
	return nil
}

func (r *Runner) lookupTemplate(ctx context.Context, id string) (models.Template, error) {
	if id == "" {
		return models.Template{}, fmt.Errorf("%w: template id", shared.ErrMissingArgument)
	}

	s := r.templateStore()
	if err := s.EnsureTemplatesLoaded(ctx); err != nil {
		return models.Template{}, fmt.Errorf("failed to load templates: %w", err)
	}

	t, ok := s.Template(id)
	if !ok {
		return models.Template{}, fmt.Errorf("%w: template %s", shared.ErrNotFound, id)
	}
	return t, nil
}

// writeTemplateResult prints a one-line confirmation for text output, the encoded template otherwise.
func (r *Runner) writeTemplateResult(cmd *cli.Command, verb string, t models.Template) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if format == formatter.FormatText {
		return r.writePlain("✓ %s template %s (%s) [%s]\n", verb, t.Name, t.ID, formatter.DefaultFlags(t))
	}

	data, err := formatter.EncodeTemplate(format, t)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", data)
}

// readContent returns --content, or the contents of --file. ok is false when neither was given.
func readContent(cmd *cli.Command) (content string, ok bool, err error) {
	if cmd.IsSet("content") && cmd.IsSet("file") {
		return "", false, fmt.Errorf("%w: cannot specify both --content and --file", shared.ErrInvalidArgument)
	}

	if path := cmd.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, fmt.Errorf("failed to read content file: %w", err)
		}
		return string(data), true, nil
	}

	if cmd.IsSet("content") {
		return cmd.String("content"), true, nil
	}
	return "", false, nil
}

// progressPrinter prints updates until the returned wait func is called, which closes the channel
// and blocks until the printer drains it.
func (r *Runner) progressPrinter() (chan tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("  %s\n", update.Message)
		}
	}()

	return progress, func() {
		close(progress)
		<-done
	}
}

// package formatter renders templates and bindings as text tables, CSV, Markdown, JSON and YAML
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
	"gopkg.in/yaml.v3"
)

// Format is an output format name accepted by the CLI.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat returns the format for name. "md" and "yml" are accepted as aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, name)
	}
}

// Ext returns the file extension used when exporting in this format.
func (f Format) Ext() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	default:
		return ".txt"
	}
}

// MarshalJSON encodes v as JSON, indented when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// MarshalYAML encodes v as YAML with two-space indentation.
func MarshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// DefaultFlags describes a template's default flags for display, e.g. "global, sheet".
func DefaultFlags(t models.Template) string {
	var flags []string
	if t.IsGlobalDefault {
		flags = append(flags, "global")
	}
	if t.IsSheetDefault {
		flags = append(flags, "sheet")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// TemplatesToText renders an aligned table of templates without their content.
func TemplatesToText(templates []models.Template) []byte {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tNAME\tSHEET TYPE\tDEFAULT\tUPDATED")
	for _, t := range templates {
		updated := "-"
		if !t.UpdatedAt.IsZero() {
			updated = t.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, orDash(t.SheetType), DefaultFlags(t), updated)
	}
	tw.Flush()

	return buf.Bytes()
}

// TemplatesToCSV converts templates to CSV with columns: ID, Name, SheetType, GlobalDefault, SheetDefault, Content
func TemplatesToCSV(templates []models.Template) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "SheetType", "GlobalDefault", "SheetDefault", "Content"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, t := range templates {
		record := []string{
			t.ID,
			t.Name,
			t.SheetType,
			strconv.FormatBool(t.IsGlobalDefault),
			strconv.FormatBool(t.IsSheetDefault),
			t.Content,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TemplateToMarkdown renders one template as a Markdown document with its content in a fenced block.
func TemplateToMarkdown(t models.Template) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", t.Name))
	buf.WriteString(fmt.Sprintf("**ID**: %s\n", t.ID))
	buf.WriteString(fmt.Sprintf("**Sheet type**: %s\n", orDash(t.SheetType)))
	buf.WriteString(fmt.Sprintf("**Default**: %s\n\n", DefaultFlags(t)))

	buf.WriteString("```\n")
	buf.WriteString(t.Content)
	if !strings.HasSuffix(t.Content, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("```\n")

	return buf.Bytes()
}

// TemplatesToMarkdown renders templates as a Markdown table followed by one section per template.
func TemplatesToMarkdown(templates []models.Template) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Templates\n\n")
	buf.WriteString(fmt.Sprintf("**Count**: %d\n\n", len(templates)))
	buf.WriteString("| Name | Sheet type | Default |\n|---|---|---|\n")
	for _, t := range templates {
		buf.WriteString(fmt.Sprintf("| %s | %s | %s |\n", escapeCell(t.Name), escapeCell(orDash(t.SheetType)), DefaultFlags(t)))
	}

	for _, t := range templates {
		buf.WriteString("\n")
		buf.Write(bytes.Replace(TemplateToMarkdown(t), []byte("# "), []byte("## "), 1))
	}

	return buf.Bytes()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// BindingsToText renders an aligned table of bindings. Detached snapshots are summarized by size.
func BindingsToText(bindings []models.Binding) []byte {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "CARD\tNAME\tSHEET TYPE\tMODE\tTEMPLATE")
	for _, b := range bindings {
		target := b.TemplateID
		if b.Mode == models.ModeDetached {
			target = fmt.Sprintf("(snapshot, %d chars)", len([]rune(b.TemplateSnapshot)))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.ExternalCardID, orDash(b.CardName), orDash(b.SheetType), b.Mode, orDash(target))
	}
	tw.Flush()

	return buf.Bytes()
}

// BindingsToCSV converts bindings to CSV with columns: ChannelID, CardID, CardName, SheetType, Mode, TemplateID, Snapshot
func BindingsToCSV(bindings []models.Binding) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ChannelID", "CardID", "CardName", "SheetType", "Mode", "TemplateID", "Snapshot"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, b := range bindings {
		record := []string{b.ChannelID, b.ExternalCardID, b.CardName, b.SheetType, string(b.Mode), b.TemplateID, b.TemplateSnapshot}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// BindingsToMarkdown renders bindings as a Markdown table.
func BindingsToMarkdown(bindings []models.Binding) []byte {
	var buf bytes.Buffer

	buf.WriteString("| Card | Name | Sheet type | Mode | Template |\n|---|---|---|---|---|\n")
	for _, b := range bindings {
		target := b.TemplateID
		if b.Mode == models.ModeDetached {
			target = "snapshot"
		}
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeCell(b.ExternalCardID), escapeCell(orDash(b.CardName)), escapeCell(orDash(b.SheetType)), b.Mode, orDash(target)))
	}

	return buf.Bytes()
}

// WriteTemplates writes templates to w in the given format.
func WriteTemplates(w io.Writer, format Format, templates []models.Template) error {
	data, err := encodeTemplates(format, templates)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func encodeTemplates(format Format, templates []models.Template) ([]byte, error) {
	switch format {
	case FormatCSV:
		return TemplatesToCSV(templates)
	case FormatMarkdown:
		return TemplatesToMarkdown(templates), nil
	case FormatJSON:
		data, err := MarshalJSON(templates, true)
		return append(data, '\n'), err
	case FormatYAML:
		return MarshalYAML(templates)
	default:
		return TemplatesToText(templates), nil
	}
}

// WriteBindings writes bindings to w in the given format.
func WriteBindings(w io.Writer, format Format, bindings []models.Binding) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatCSV:
		data, err = BindingsToCSV(bindings)
	case FormatMarkdown:
		data = BindingsToMarkdown(bindings)
	case FormatJSON:
		data, err = MarshalJSON(bindings, true)
		data = append(data, '\n')
	case FormatYAML:
		data, err = MarshalYAML(bindings)
	default:
		data = BindingsToText(bindings)
	}
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// EncodeTemplate encodes a single template for export. Text exports contain only the content.
func EncodeTemplate(format Format, t models.Template) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return TemplateToMarkdown(t), nil
	case FormatJSON:
		return MarshalJSON(t, true)
	case FormatYAML:
		return MarshalYAML(t)
	case FormatCSV:
		return TemplatesToCSV([]models.Template{t})
	default:
		return []byte(t.Content), nil
	}
}

// WriteTemplateFile exports one template to {dir}/{id}{ext} and returns the path.
func WriteTemplateFile(t models.Template, dir string, format Format) (string, error) {
	if t.ID == "" {
		return "", fmt.Errorf("%w: template has no id", shared.ErrInvalidInput)
	}

	data, err := EncodeTemplate(format, t)
	if err != nil {
		return "", fmt.Errorf("failed to encode template %s: %w", t.ID, err)
	}

	path := filepath.Join(dir, t.ID+format.Ext())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write template file: %w", err)
	}
	return path, nil
}

// RenderContent renders template content as terminal Markdown wrapped at width.
//
// A width of zero or less disables wrapping.
func RenderContent(content string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle("dark")}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}

	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}

	out, err := renderer.Render(content)
	if err != nil {
		return "", fmt.Errorf("failed to render content: %w", err)
	}
	return out, nil
}

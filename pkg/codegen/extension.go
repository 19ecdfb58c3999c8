package codegen

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/program"
	"github.com/poltergeist/wraith/pkg/types"
)

// Extension generates source files before the program is rebuilt
type Extension interface {
	Generate(ctx context.Context, opts types.ToolOptions, prog program.Program, host program.Host) *Future
}

// TemplateData is the value templates are executed against
type TemplateData struct {
	BasePath string
	// Files are the root files relative to BasePath, slash separated
	Files   []string
	Options types.CompilerOptions
}

// TemplateExtension renders toolOptions.codegen.templates with text/template
type TemplateExtension struct {
	logger logger.Logger
}

var _ Extension = (*TemplateExtension)(nil)

// NewTemplateExtension creates the default code generation extension
func NewTemplateExtension(log logger.Logger) *TemplateExtension {
	if log == nil {
		log = logger.Nop()
	}
	return &TemplateExtension{logger: log}
}

// Generate renders every configured template on a background goroutine
func (e *TemplateExtension) Generate(ctx context.Context, opts types.ToolOptions, prog program.Program, host program.Host) *Future {
	return Go(ctx, e.logger, func(ctx context.Context) error {
		data := NewTemplateData(opts.BasePath, prog)
		for _, spec := range opts.Codegen.Templates {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.render(opts.BasePath, spec, data, host); err != nil {
				return err
			}
		}
		return nil
	})
}

// NewTemplateData builds template input from a program
func NewTemplateData(basePath string, prog program.Program) TemplateData {
	data := TemplateData{BasePath: basePath, Options: prog.Options()}
	for _, f := range prog.RootFiles() {
		rel, err := filepath.Rel(basePath, f)
		if err != nil {
			rel = f
		}
		data.Files = append(data.Files, filepath.ToSlash(rel))
	}
	return data
}

func (e *TemplateExtension) render(basePath string, spec types.TemplateSpec, data TemplateData, host program.Host) error {
	source := resolve(basePath, spec.Source)
	output := resolve(basePath, spec.Output)

	raw, err := host.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", spec.Source, err)
	}

	tpl, err := template.New(filepath.Base(source)).
		Option("missingkey=error").
		Funcs(templateFuncs).
		Parse(string(raw))
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", spec.Source, err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template %s: %w", spec.Source, err)
	}

	if err := host.WriteFile(output, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write generated file %s: %w", spec.Output, err)
	}

	e.logger.Debug("Generated file",
		logger.WithField("template", spec.Source),
		logger.WithField("output", spec.Output),
		logger.WithField("bytes", buf.Len()))
	return nil
}

var templateFuncs = template.FuncMap{
	"base":    filepath.Base,
	"join":    strings.Join,
	"trimExt": func(p string) string { return strings.TrimSuffix(p, filepath.Ext(p)) },
	"quote":   func(s string) string { return fmt.Sprintf("%q", s) },
}

func resolve(basePath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}

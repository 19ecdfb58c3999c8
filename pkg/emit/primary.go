package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/program"
)

// BannerLine is prepended to primary outputs when the banner option is on
const BannerLine = "/* generated by wraith - do not edit */"

// PrimaryEmitter writes the transpiled output of every loaded root file
// plus, optionally, its source map
type PrimaryEmitter struct {
	logger logger.Logger
}

var _ Emitter = (*PrimaryEmitter)(nil)

// NewPrimaryEmitter creates the primary emitter
func NewPrimaryEmitter(log logger.Logger) *PrimaryEmitter {
	if log == nil {
		log = logger.Nop()
	}
	return &PrimaryEmitter{logger: log}
}

// Emit writes outputs in root file order. Files without loaded text are skipped.
func (e *PrimaryEmitter) Emit(ctx context.Context, host *Host, prog program.Program) error {
	settings := host.Settings()

	for _, source := range prog.RootFiles() {
		if err := ctx.Err(); err != nil {
			return err
		}

		text, err := prog.SourceText(source)
		if err != nil {
			e.logger.Debug("Skipping file without source text",
				logger.WithField("file", source),
				logger.WithError(err))
			continue
		}

		output, err := host.OutputPath(source, settings.OutExt)
		if err != nil {
			return err
		}

		var body strings.Builder
		if settings.Banner {
			body.WriteString(BannerLine)
			body.WriteByte('\n')
		}
		body.WriteString(text)

		if settings.SourceMap {
			mapPath := output + ".map"
			if err := e.writeSourceMap(host, source, output, mapPath, text, settings.Banner); err != nil {
				return err
			}
			if text != "" && !strings.HasSuffix(text, "\n") {
				body.WriteByte('\n')
			}
			fmt.Fprintf(&body, "//# sourceMappingURL=%s\n", filepath.Base(mapPath))
		}

		if err := host.Write(source, output, KindPrimary, []byte(body.String())); err != nil {
			return err
		}
	}
	return nil
}

func (e *PrimaryEmitter) writeSourceMap(host *Host, source, output, mapPath, text string, banner bool) error {
	relSource, err := filepath.Rel(filepath.Dir(mapPath), source)
	if err != nil {
		relSource = source
	}

	offset := 0
	if banner {
		offset = 1
	}

	sm := SourceMap{
		Version:  3,
		File:     filepath.Base(output),
		Sources:  []string{filepath.ToSlash(relSource)},
		Names:    []string{},
		Mappings: IdentityMappings(CountLines(text), offset),
	}
	data, err := json.Marshal(sm)
	if err != nil {
		return fmt.Errorf("failed to encode source map for %s: %w", source, err)
	}
	return host.Write(source, mapPath, KindSourceMap, data)
}

package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/program"
	"github.com/poltergeist/wraith/pkg/types"
)

// MetadataVersion is the schema version of metadata documents
const MetadataVersion = 1

var exportPattern = regexp.MustCompile(
	`^\s*export\s+(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?(?:async\s+)?(const|let|var|function\*?|class|interface|type|enum)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

// Export is one exported symbol
type Export struct {
	Name string `json:"name" msgpack:"name"`
	Kind string `json:"kind" msgpack:"kind"`
	Line int    `json:"line" msgpack:"line"`
}

// Metadata describes the public surface of one source file
type Metadata struct {
	Version    int      `json:"version" msgpack:"version"`
	Source     string   `json:"source" msgpack:"source"`
	Output     string   `json:"output" msgpack:"output"`
	OutputHash string   `json:"outputHash" msgpack:"outputHash"`
	Exports    []Export `json:"exports" msgpack:"exports"`
}

// ExtractExports scans text line by line for exported declarations
func ExtractExports(text string) []Export {
	exports := []Export{}
	for i, line := range strings.Split(text, "\n") {
		m := exportPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		exports = append(exports, Export{
			Name: m[2],
			Kind: strings.TrimSuffix(m[1], "*"),
			Line: i + 1,
		})
	}
	return exports
}

// MetadataEmitter writes a metadata document and a declaration file for
// every file that already has a primary output
type MetadataEmitter struct {
	logger logger.Logger
}

var _ Emitter = (*MetadataEmitter)(nil)

// NewMetadataEmitter creates the metadata emitter
func NewMetadataEmitter(log logger.Logger) *MetadataEmitter {
	if log == nil {
		log = logger.Nop()
	}
	return &MetadataEmitter{logger: log}
}

// Emit writes metadata in root file order
func (e *MetadataEmitter) Emit(ctx context.Context, host *Host, prog program.Program) error {
	settings := host.Settings()

	for _, source := range prog.RootFiles() {
		if err := ctx.Err(); err != nil {
			return err
		}

		text, err := prog.SourceText(source)
		if err != nil {
			continue
		}

		primary, ok := host.Lookup(source, KindPrimary)
		if !ok {
			return fmt.Errorf("%w for %s", ErrPrimaryMissing, source)
		}

		relSource, err := host.RelativeSource(source)
		if err != nil {
			return err
		}
		relOutput, err := filepath.Rel(settings.OutDir, primary.Output)
		if err != nil {
			relOutput = primary.Output
		}

		exports := ExtractExports(text)
		meta := Metadata{
			Version:    MetadataVersion,
			Source:     filepath.ToSlash(relSource),
			Output:     filepath.ToSlash(relOutput),
			OutputHash: primary.SHA256,
			Exports:    exports,
		}

		data, ext, err := EncodeMetadata(meta, settings.MetadataFormat)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", source, err)
		}
		metaPath, err := host.OutputPath(source, ext)
		if err != nil {
			return err
		}
		if err := host.Write(source, metaPath, KindMetadata, data); err != nil {
			return err
		}

		declPath, err := host.OutputPath(source, settings.DeclarationExt)
		if err != nil {
			return err
		}
		if err := host.Write(source, declPath, KindDeclaration, []byte(Declarations(meta.Source, exports))); err != nil {
			return err
		}

		e.logger.Debug("Emitted metadata",
			logger.WithField("file", source),
			logger.WithField("exports", len(exports)))
	}
	return nil
}

// EncodeMetadata serializes meta and returns the file extension to use
func EncodeMetadata(meta Metadata, format types.MetadataFormat) ([]byte, string, error) {
	switch format {
	case types.MetadataFormatMsgpack:
		var buf bytes.Buffer
		if err := msgpack.NewEncoder(&buf).Encode(&meta); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), ".metadata.msgpack", nil
	case types.MetadataFormatJSON, "":
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return append(data, '\n'), ".metadata.json", nil
	}
	return nil, "", fmt.Errorf("unsupported metadata format %q", format)
}

// DecodeMetadata parses a document written by EncodeMetadata
func DecodeMetadata(data []byte, format types.MetadataFormat) (Metadata, error) {
	var meta Metadata
	var err error
	if format == types.MetadataFormatMsgpack {
		err = msgpack.NewDecoder(bytes.NewReader(data)).Decode(&meta)
	} else {
		err = json.Unmarshal(data, &meta)
	}
	return meta, err
}

// Declarations renders `export declare` stubs for exports
func Declarations(source string, exports []Export) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// declarations generated by wraith from %s\n", source)
	for _, ex := range exports {
		switch ex.Kind {
		case "const", "let", "var":
			fmt.Fprintf(&b, "export declare %s %s: unknown;\n", ex.Kind, ex.Name)
		case "function":
			fmt.Fprintf(&b, "export declare function %s(...args: unknown[]): unknown;\n", ex.Name)
		case "class":
			fmt.Fprintf(&b, "export declare class %s {}\n", ex.Name)
		case "interface":
			fmt.Fprintf(&b, "export declare interface %s {}\n", ex.Name)
		case "type":
			fmt.Fprintf(&b, "export declare type %s = unknown;\n", ex.Name)
		case "enum":
			fmt.Fprintf(&b, "export declare enum %s {}\n", ex.Name)
		}
	}
	if len(exports) == 0 {
		b.WriteString("export {};\n")
	}
	return b.String()
}

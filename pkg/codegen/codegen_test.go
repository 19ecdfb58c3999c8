package codegen_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist/wraith/pkg/codegen"
	"github.com/poltergeist/wraith/pkg/faults"
	"github.com/poltergeist/wraith/pkg/mocks"
	"github.com/poltergeist/wraith/pkg/program"
	"github.com/poltergeist/wraith/pkg/types"
)

func TestGo_Success(t *testing.T) {
	f := codegen.Go(context.Background(), nil, func(ctx context.Context) error { return nil })
	require.NoError(t, f.Await(context.Background()))
	require.NoError(t, f.Await(context.Background()))
	assert.Equal(t, 2, f.Awaits())
}

func TestGo_ErrorBecomesCodegenFault(t *testing.T) {
	cause := errors.New("template exploded")
	f := codegen.Go(context.Background(), nil, func(ctx context.Context) error { return cause })

	err := f.Await(context.Background())
	require.ErrorIs(t, err, faults.ErrCodegen)
	assert.ErrorIs(t, err, cause)

	again := f.Await(context.Background())
	assert.Same(t, err, again, "awaiting twice returns the same outcome")
}

func TestGo_PanicBecomesCodegenFault(t *testing.T) {
	f := codegen.Go(context.Background(), nil, func(ctx context.Context) error {
		panic("boom")
	})

	err := f.Await(context.Background())
	require.ErrorIs(t, err, faults.ErrCodegen)
	assert.ErrorIs(t, err, codegen.ErrPanic)
	assert.Contains(t, err.Error(), "boom")
}

func TestFuture_AwaitHonoursContext(t *testing.T) {
	f := codegen.NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := f.Await(ctx)
	assert.ErrorIs(t, err, faults.ErrCodegen)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_ResolveOnce(t *testing.T) {
	f := codegen.NewFuture()
	f.Resolve(nil)
	f.Resolve(errors.New("late"))

	select {
	case <-f.Done():
	default:
		t.Fatal("expected resolved future")
	}
	assert.NoError(t, f.Await(context.Background()))

	assert.ErrorIs(t, codegen.Resolved(errors.New("x")).Await(context.Background()), faults.ErrCodegen)
}

func TestTemplateExtension_Generate(t *testing.T) {
	mfs := mocks.NewMockFileSystem()
	mfs.AddFile("/p/src/a.ts", "export const a = 1;\n")
	mfs.AddFile("/p/src/b.ts", "export const b = 2;\n")
	mfs.AddFile("/p/templates/index.tmpl",
		"// generated from {{len .Files}} files\n{{range .Files}}export * from {{quote (trimExt .)}};\n{{end}}")

	host := program.NewHost(mfs)
	prog, err := program.NewSourceProgram([]string{"/p/src/a.ts", "/p/src/b.ts"}, nil, host, nil)
	require.NoError(t, err)

	opts := types.ToolOptions{
		BasePath: "/p",
		Codegen: types.CodegenOptions{Templates: []types.TemplateSpec{
			{Source: "templates/index.tmpl", Output: "gen/index.ts"},
		}},
	}

	ext := codegen.NewTemplateExtension(nil)
	require.NoError(t, ext.Generate(context.Background(), opts, prog, host).Await(context.Background()))

	content, ok := mfs.File("/p/gen/index.ts")
	require.True(t, ok)
	assert.Equal(t, "// generated from 2 files\nexport * from \"src/a\";\nexport * from \"src/b\";\n", content)
}

func TestTemplateExtension_Errors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"missing source", "", "failed to read template"},
		{"parse error", "{{ .Files ", "failed to parse template"},
		{"missing key", "{{ .Nope }}", "failed to execute template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := mocks.NewMockFileSystem()
			mfs.AddFile("/p/a.ts", "")
			if tt.template != "" {
				mfs.AddFile("/p/t.tmpl", tt.template)
			}
			host := program.NewHost(mfs)
			prog, err := program.NewSourceProgram([]string{"/p/a.ts"}, nil, host, nil)
			require.NoError(t, err)

			opts := types.ToolOptions{
				BasePath: "/p",
				Codegen:  types.CodegenOptions{Templates: []types.TemplateSpec{{Source: "t.tmpl", Output: "out.ts"}}},
			}
			err = codegen.NewTemplateExtension(nil).Generate(context.Background(), opts, prog, host).Await(context.Background())
			require.ErrorIs(t, err, faults.ErrCodegen)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

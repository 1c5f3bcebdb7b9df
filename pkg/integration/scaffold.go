package integration

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"
)

// DefaultVersion is the version of a scaffolded integration.
const DefaultVersion = "0.1.0"

// ScaffoldOptions describe the integration to create.
type ScaffoldOptions struct {
	// Root is the mono-repo root.
	Root string
	// ModulePath is the Go module path of the mono-repo.
	ModulePath  string
	Name        string
	Kind        Kind
	Author      string
	Description string
}

func (o *ScaffoldOptions) check() error {
	if !ValidName(o.Name) {
		return errors.Wrapf(ErrInvalidName, "%q", o.Name)
	}
	if _, err := ParseKind(string(o.Kind)); err != nil {
		return err
	}
	if o.ModulePath == "" {
		return errors.Wrap(ErrInvalidOptions, "module path must be set")
	}
	if o.Author == "" {
		return errors.Wrap(ErrInvalidOptions, "author must be set")
	}

	return nil
}

// packageName turns an integration name into a Go package name.
func packageName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return -1
		}

		return r
	}, name)
}

// typeName returns the exported type of the integration, such as "AcmeLLM".
func typeName(name string, kind Kind) string {
	var sb strings.Builder
	upper := true
	for _, r := range name {
		switch {
		case r == '-' || r == '_':
			upper = true
		case upper:
			sb.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			sb.WriteRune(r)
		}
	}

	switch kind {
	case KindLLM:
		sb.WriteString("LLM")
	case KindEmbedding:
		sb.WriteString("Embedder")
	case KindVectorStore:
		sb.WriteString("Store")
	case KindRetriever:
		sb.WriteString("Retriever")
	case KindChatStore:
		sb.WriteString("ChatStore")
	}

	return sb.String()
}

type scaffoldData struct {
	ScaffoldOptions
	Package    string
	Type       string
	ImportPath string
}

var scaffoldFiles = map[string]string{
	"doc.go": `// Package {{.Package}} is the {{.Name}} {{.Kind}} integration.{{if .Description}}
//
// {{.Description}}{{end}}
package {{.Package}}
`,
	"{{.Package}}.go": `package {{.Package}}

import (
	"context"

	"github.com/pkg/errors"
{{if eq .Kind "llm"}}
	"{{.ModulePath}}/pkg/llm"
{{else if eq .Kind "embedding"}}
	"{{.ModulePath}}/pkg/embedding"
{{else if eq .Kind "vectorstore"}}
	"{{.ModulePath}}/pkg/schema"
	"{{.ModulePath}}/pkg/vectorstore"
{{else if eq .Kind "retriever"}}
	"{{.ModulePath}}/pkg/retriever"
	"{{.ModulePath}}/pkg/schema"
{{else if eq .Kind "chatstore"}}
	"{{.ModulePath}}/pkg/chatstore"
	"{{.ModulePath}}/pkg/llm"
{{end}})

var ErrNotImplemented = errors.New("{{.Name}}: not implemented")

type {{.Type}} struct{}

func New() *{{.Type}} {
	return &{{.Type}}{}
}
{{if eq .Kind "llm"}}
func (*{{.Type}}) Metadata() llm.Metadata {
	return llm.Metadata{ModelName: "{{.Name}}"}
}

func (*{{.Type}}) Complete(ctx context.Context, prompt string) (*llm.CompletionResponse, error) {
	return nil, ErrNotImplemented
}

func (*{{.Type}}) Chat(ctx context.Context, messages []llm.ChatMessage) (*llm.ChatResponse, error) {
	return nil, ErrNotImplemented
}

var _ llm.LLM = (*{{.Type}})(nil)
{{else if eq .Kind "embedding"}}
func (*{{.Type}}) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrNotImplemented
}

func (*{{.Type}}) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNotImplemented
}

var _ embedding.Embedder = (*{{.Type}})(nil)
{{else if eq .Kind "vectorstore"}}
func (*{{.Type}}) Add(ctx context.Context, nodes []*schema.Node) ([]string, error) {
	return nil, ErrNotImplemented
}

func (*{{.Type}}) Query(ctx context.Context, query vectorstore.Query) (*vectorstore.Result, error) {
	return nil, ErrNotImplemented
}

func (*{{.Type}}) Delete(ctx context.Context, refDocID string) error {
	return ErrNotImplemented
}

var _ vectorstore.VectorStore = (*{{.Type}})(nil)
{{else if eq .Kind "retriever"}}
func (*{{.Type}}) Retrieve(ctx context.Context, query schema.QueryBundle) (schema.NodesWithScore, error) {
	return nil, ErrNotImplemented
}

var _ retriever.Retriever = (*{{.Type}})(nil)
{{else if eq .Kind "chatstore"}}
func (*{{.Type}}) SetMessages(ctx context.Context, key string, messages []llm.ChatMessage) error {
	return ErrNotImplemented
}

func (*{{.Type}}) GetMessages(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	return nil, ErrNotImplemented
}

func (*{{.Type}}) AddMessage(ctx context.Context, key string, message llm.ChatMessage) error {
	return ErrNotImplemented
}

func (*{{.Type}}) DeleteMessages(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	return nil, ErrNotImplemented
}

func (*{{.Type}}) DeleteMessage(ctx context.Context, key string, idx int) (*llm.ChatMessage, error) {
	return nil, ErrNotImplemented
}

func (*{{.Type}}) DeleteLastMessage(ctx context.Context, key string) (*llm.ChatMessage, error) {
	return nil, ErrNotImplemented
}

func (*{{.Type}}) GetKeys(ctx context.Context) ([]string, error) {
	return nil, ErrNotImplemented
}

var _ chatstore.ChatStore = (*{{.Type}})(nil)
{{end}}`,
	"{{.Package}}_test.go": `package {{.Package}}_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"{{.ImportPath}}"
)

func TestNew(t *testing.T) {
	t.Parallel()

	require.NotNil(t, {{.Package}}.New())
}
`,
}

func render(text string, data *scaffoldData) ([]byte, error) {
	tpl, err := template.New("scaffold").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse template")
	}

	buf := &bytes.Buffer{}
	err = tpl.Execute(buf, data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to execute template")
	}

	return buf.Bytes(), nil
}

// Scaffold creates root/integrations/<kind>s/<name> with a stub implementation of the kind
// interface, a test and the manifest. It returns the manifest and never overwrites an existing
// directory.
func Scaffold(opts ScaffoldOptions) (*Manifest, error) {
	err := opts.check()
	if err != nil {
		return nil, err
	}

	data := &scaffoldData{
		ScaffoldOptions: opts,
		Package:         packageName(opts.Name),
		Type:            typeName(opts.Name, opts.Kind),
		ImportPath:      strings.Join([]string{opts.ModulePath, IntegrationsDir, opts.Kind.Dir(), opts.Name}, "/"),
	}

	dir := filepath.Join(opts.Root, IntegrationsDir, opts.Kind.Dir(), opts.Name)
	if _, err := os.Stat(dir); err == nil {
		return nil, errors.Wrapf(ErrAlreadyExists, "%s", dir)
	}

	err = os.MkdirAll(dir, 0o755) //nolint:gosec
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", dir)
	}

	for nameTpl, contentTpl := range scaffoldFiles {
		name, err := render(nameTpl, data)
		if err != nil {
			return nil, err
		}

		content, err := render(contentTpl, data)
		if err != nil {
			return nil, errors.Wrapf(err, "file %s", name)
		}

		content, err = format.Source(content)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to format %s", name)
		}

		path := filepath.Join(dir, string(name))
		err = os.WriteFile(path, content, 0o644) //nolint:gosec
		if err != nil {
			return nil, errors.Wrapf(err, "unable to write %s", path)
		}
	}

	manifest := &Manifest{
		Name:         opts.Name,
		Kind:         opts.Kind,
		Description:  opts.Description,
		Version:      DefaultVersion,
		ImportPath:   data.ImportPath,
		ClassAuthors: map[string]string{data.Type: opts.Author},
		Dir:          dir,
	}

	err = manifest.Write(dir)
	if err != nil {
		return nil, err
	}

	log.With(log.F{"dir": dir, "import_path": manifest.ImportPath}).Debug("integration scaffolded")

	return manifest, nil
}

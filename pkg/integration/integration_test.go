package integration_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/pkg/integration"
)

const modulePath = "github.com/askiada/go-query-pipeline"

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := integration.ParseKind("LLM")
	require.NoError(t, err)
	assert.Equal(t, integration.KindLLM, kind)
	assert.Equal(t, "llms", kind.Dir())

	_, err = integration.ParseKind("reader")
	require.ErrorIs(t, err, integration.ErrUnknownKind)
}

func TestValidName(t *testing.T) {
	t.Parallel()

	tcs := map[string]bool{
		"acme":      true,
		"acme-chat": true,
		"acme_2":    true,
		"":          false,
		"Acme":      false,
		"2acme":     false,
		"acme chat": false,
		"acmé":      false,
	}

	for name, expected := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, expected, integration.ValidName(name))
		})
	}
}

func validManifest() *integration.Manifest {
	return &integration.Manifest{
		Name:         "acme",
		Kind:         integration.KindLLM,
		Version:      "0.1.0",
		ImportPath:   modulePath + "/integrations/llms/acme",
		ClassAuthors: map[string]string{"AcmeLLM": "jane"},
	}
}

func TestManifestValidate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		update   func(m *integration.Manifest)
		expected error
		contains string
	}{
		"valid":           {update: func(*integration.Manifest) {}},
		"bad name":        {update: func(m *integration.Manifest) { m.Name = "Acme" }, expected: integration.ErrInvalidName},
		"bad kind":        {update: func(m *integration.Manifest) { m.Kind = "reader" }, expected: integration.ErrUnknownKind},
		"no version":      {update: func(m *integration.Manifest) { m.Version = "" }, expected: integration.ErrMissingField, contains: "version"},
		"no import path":  {update: func(m *integration.Manifest) { m.ImportPath = "" }, expected: integration.ErrMissingField, contains: "import_path"},
		"no authors":      {update: func(m *integration.Manifest) { m.ClassAuthors = nil }, expected: integration.ErrMissingField, contains: "class_authors"},
		"empty author":    {update: func(m *integration.Manifest) { m.ClassAuthors["AcmeLLM"] = "" }, expected: integration.ErrMissingField, contains: "author of AcmeLLM"},
		"wrong directory": {update: func(m *integration.Manifest) { m.Kind = integration.KindEmbedding }, contains: "does not end with embeddings/acme"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m := validManifest()
			tc.update(m)

			err := m.Validate()
			if tc.expected == nil && tc.contains == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			if tc.expected != nil {
				require.ErrorIs(t, err, tc.expected)
			}
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestManifestWriteAndLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := validManifest()
	m.Description = "Acme hosted models"
	require.NoError(t, m.Write(dir))

	fromDir, err := integration.LoadManifest(dir)
	require.NoError(t, err)
	fromFile, err := integration.LoadManifest(filepath.Join(dir, integration.ManifestFile))
	require.NoError(t, err)

	m.Dir = dir
	assert.Equal(t, m, fromDir)
	assert.Equal(t, m, fromFile)

	_, err = integration.LoadManifest(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestScaffold(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		kind      integration.Kind
		name      string
		typeName  string
		assertion string
	}{
		"llm":         {kind: integration.KindLLM, name: "acme", typeName: "AcmeLLM", assertion: "var _ llm.LLM = (*AcmeLLM)(nil)"},
		"embedding":   {kind: integration.KindEmbedding, name: "acme-text", typeName: "AcmeTextEmbedder", assertion: "var _ embedding.Embedder = (*AcmeTextEmbedder)(nil)"},
		"vectorstore": {kind: integration.KindVectorStore, name: "acme_db", typeName: "AcmeDbStore", assertion: "var _ vectorstore.VectorStore = (*AcmeDbStore)(nil)"},
		"retriever":   {kind: integration.KindRetriever, name: "bm25", typeName: "Bm25Retriever", assertion: "var _ retriever.Retriever = (*Bm25Retriever)(nil)"},
		"chatstore":   {kind: integration.KindChatStore, name: "redis", typeName: "RedisChatStore", assertion: "var _ chatstore.ChatStore = (*RedisChatStore)(nil)"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			opts := integration.ScaffoldOptions{
				Root:        root,
				ModulePath:  modulePath,
				Name:        tc.name,
				Kind:        tc.kind,
				Author:      "jane",
				Description: "Test integration.",
			}

			m, err := integration.Scaffold(opts)
			require.NoError(t, err)
			require.NoError(t, m.Validate())
			assert.Equal(t, map[string]string{tc.typeName: "jane"}, m.ClassAuthors)
			assert.Equal(t, modulePath+"/integrations/"+tc.kind.Dir()+"/"+tc.name, m.ImportPath)

			dir := filepath.Join(root, "integrations", tc.kind.Dir(), tc.name)
			assert.Equal(t, dir, m.Dir)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			names := []string{}
			for _, entry := range entries {
				names = append(names, entry.Name())
			}
			assert.Len(t, names, 4)
			assert.Contains(t, names, "doc.go")
			assert.Contains(t, names, integration.ManifestFile)

			pkg := filepath.Base(m.ImportPath)
			for _, r := range "-_" {
				pkg = removeRune(pkg, r)
			}

			source, err := os.ReadFile(filepath.Join(dir, pkg+".go"))
			require.NoError(t, err)
			assert.Contains(t, string(source), "package "+pkg)
			assert.Contains(t, string(source), "type "+tc.typeName+" struct{}")
			assert.Contains(t, string(source), tc.assertion)

			test, err := os.ReadFile(filepath.Join(dir, pkg+"_test.go"))
			require.NoError(t, err)
			assert.Contains(t, string(test), `"`+m.ImportPath+`"`)

			fset := token.NewFileSet()
			for _, file := range []string{"doc.go", pkg + ".go", pkg + "_test.go"} {
				_, err = parser.ParseFile(fset, filepath.Join(dir, file), nil, parser.AllErrors)
				require.NoError(t, err, file)
			}

			_, err = integration.Scaffold(opts)
			require.ErrorIs(t, err, integration.ErrAlreadyExists)
		})
	}
}

func removeRune(s string, r rune) string {
	res := []rune{}
	for _, c := range s {
		if c != r {
			res = append(res, c)
		}
	}

	return string(res)
}

func TestScaffoldInvalidOptions(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		opts     integration.ScaffoldOptions
		expected error
	}{
		"bad name":       {opts: integration.ScaffoldOptions{Name: "Bad", Kind: integration.KindLLM, ModulePath: modulePath, Author: "a"}, expected: integration.ErrInvalidName},
		"bad kind":       {opts: integration.ScaffoldOptions{Name: "ok", Kind: "reader", ModulePath: modulePath, Author: "a"}, expected: integration.ErrUnknownKind},
		"no module path": {opts: integration.ScaffoldOptions{Name: "ok", Kind: integration.KindLLM, Author: "a"}, expected: integration.ErrInvalidOptions},
		"no author":      {opts: integration.ScaffoldOptions{Name: "ok", Kind: integration.KindLLM, ModulePath: modulePath}, expected: integration.ErrInvalidOptions},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tc.opts.Root = t.TempDir()
			_, err := integration.Scaffold(tc.opts)
			require.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, opts := range []integration.ScaffoldOptions{
		{Name: "zeta", Kind: integration.KindLLM},
		{Name: "alpha", Kind: integration.KindVectorStore},
		{Name: "beta", Kind: integration.KindEmbedding},
	} {
		opts.Root, opts.ModulePath, opts.Author = root, modulePath, "jane"
		_, err := integration.Scaffold(opts)
		require.NoError(t, err)
	}

	manifests, err := integration.Discover(root)
	require.NoError(t, err)
	require.Len(t, manifests, 3)
	assert.Equal(t, "beta", manifests[0].Name)
	assert.Equal(t, "zeta", manifests[1].Name)
	assert.Equal(t, "alpha", manifests[2].Name)

	_, err = integration.Discover(filepath.Join(root, "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

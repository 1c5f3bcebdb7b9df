// Package integration describes the integration packages living under integrations/ and
// scaffolds new ones.
package integration

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest stored at the root of every integration package.
const ManifestFile = "integration.yaml"

var (
	ErrUnknownKind    = errors.New("unknown integration kind")
	ErrInvalidName    = errors.New("invalid integration name")
	ErrMissingField   = errors.New("missing manifest field")
	ErrAlreadyExists  = errors.New("integration already exists")
	ErrInvalidOptions = errors.New("invalid scaffold options")
)

// Kind is the core interface an integration implements.
type Kind string

const (
	KindLLM         Kind = "llm"
	KindEmbedding   Kind = "embedding"
	KindVectorStore Kind = "vectorstore"
	KindRetriever   Kind = "retriever"
	KindChatStore   Kind = "chatstore"
)

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{KindChatStore, KindEmbedding, KindLLM, KindRetriever, KindVectorStore}
}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, error) {
	kind := Kind(strings.ToLower(s))
	if !slices.Contains(Kinds(), kind) {
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}

	return kind, nil
}

// Dir is the directory grouping the integrations of the kind, such as "llms".
func (k Kind) Dir() string {
	return string(k) + "s"
}

// Manifest is the metadata block of an integration package.
type Manifest struct {
	Name        string `yaml:"name"`
	Kind        Kind   `yaml:"kind"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version"`
	// ImportPath is the Go import path of the package.
	ImportPath string `yaml:"import_path"`
	// ClassAuthors maps every exported type of the package to its author.
	ClassAuthors map[string]string `yaml:"class_authors"`

	// Dir is the directory the manifest was loaded from.
	Dir string `yaml:"-"`
}

// ValidName reports whether name can be used as an integration directory and package name.
func ValidName(name string) bool {
	if name == "" || !unicode.IsLower(rune(name[0])) {
		return false
	}

	for _, r := range name {
		if r > unicode.MaxASCII || !(unicode.IsLower(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return false
		}
	}

	return true
}

// Validate returns every problem of the manifest.
func (m *Manifest) Validate() error {
	var res *multierror.Error

	if !ValidName(m.Name) {
		res = multierror.Append(res, errors.Wrapf(ErrInvalidName, "%q", m.Name))
	}

	if _, err := ParseKind(string(m.Kind)); err != nil {
		res = multierror.Append(res, err)
	}

	if m.Version == "" {
		res = multierror.Append(res, errors.Wrap(ErrMissingField, "version"))
	}

	if m.ImportPath == "" {
		res = multierror.Append(res, errors.Wrap(ErrMissingField, "import_path"))
	} else if m.Name != "" && m.Kind != "" && !strings.HasSuffix(m.ImportPath, "/"+m.Kind.Dir()+"/"+m.Name) {
		res = multierror.Append(res, errors.Errorf("import path %s does not end with %s/%s", m.ImportPath, m.Kind.Dir(), m.Name))
	}

	if len(m.ClassAuthors) == 0 {
		res = multierror.Append(res, errors.Wrap(ErrMissingField, "class_authors"))
	}
	for class, author := range m.ClassAuthors {
		if author == "" {
			res = multierror.Append(res, errors.Wrapf(ErrMissingField, "author of %s", class))
		}
	}

	return res.ErrorOrNil()
}

// LoadManifest reads the manifest at path. path is either the manifest itself or the
// integration directory.
func LoadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to stat %s", path)
	}
	if info.IsDir() {
		path = filepath.Join(path, ManifestFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}

	m := &Manifest{}
	err = yaml.Unmarshal(data, m)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decode %s", path)
	}
	m.Dir = filepath.Dir(path)

	return m, nil
}

// Write stores the manifest in dir.
func (m *Manifest) Write(dir string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "unable to encode manifest")
	}

	path := filepath.Join(dir, ManifestFile)
	err = os.WriteFile(path, data, 0o644) //nolint:gosec
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}

	return nil
}

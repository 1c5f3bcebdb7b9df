package integration

import (
	"cmp"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"
)

// IntegrationsDir is the directory of the mono-repo holding the integration packages.
const IntegrationsDir = "integrations"

// Discover loads every manifest found under root/integrations, sorted by import path.
func Discover(root string) ([]*Manifest, error) {
	res := []*Manifest{}

	err := filepath.WalkDir(filepath.Join(root, IntegrationsDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != ManifestFile {
			return nil
		}

		m, err := LoadManifest(path)
		if err != nil {
			return err
		}
		log.With(log.F{"path": path, "import_path": m.ImportPath}).Trace("integration found")
		res = append(res, m)

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to discover integrations in %s", root)
	}

	slices.SortFunc(res, func(a, b *Manifest) int {
		return cmp.Compare(a.ImportPath, b.ImportPath)
	})

	return res, nil
}

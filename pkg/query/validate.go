package query

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Validate reports every structural problem of the pipeline: no module at all, or a required
// input of a non-root module that no link feeds.
func (p *Pipeline) Validate() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.modules) == 0 {
		return ErrNoModules
	}

	vertices, err := p.store.ListVertices()
	if err != nil {
		return errors.Wrap(err, "unable to list modules")
	}

	var res *multierror.Error
	for _, name := range vertices {
		if len(p.store.Parents(name)) == 0 {
			continue
		}

		linked := p.linkedKeys(name)
		for _, key := range p.modules[name].InputKeys().Required {
			if _, ok := linked[key]; !ok {
				res = multierror.Append(res, errors.Wrapf(ErrMissingInput, "module %s input %q is not linked", name, key))
			}
		}
	}

	return res.ErrorOrNil()
}

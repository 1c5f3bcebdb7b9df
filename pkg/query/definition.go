package query

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ModuleDef declares a module in a definition file. Every key besides type and partial is an
// option of the module type.
type ModuleDef struct {
	Type string `yaml:"type"`
	// Partial binds inputs of the module.
	Partial map[string]any `yaml:"partial,omitempty"`
	Options map[string]any `yaml:",inline"`
}

// Definition is a pipeline declared in YAML.
//
//	name: qa
//	modules:
//	  retriever: {type: retriever, top_k: 3}
//	  synth: {type: synthesizer, mode: refine}
//	links:
//	  - {src: retriever, dest: synth, dest_key: nodes}
type Definition struct {
	Name        string               `yaml:"name"`
	Concurrency int                  `yaml:"concurrency,omitempty"`
	Verbose     bool                 `yaml:"verbose,omitempty"`
	Modules     map[string]ModuleDef `yaml:"modules"`
	// Chain links the listed modules in order.
	Chain []string `yaml:"chain,omitempty"`
	Links []Link   `yaml:"links,omitempty"`
}

// LoadDefinition decodes a definition from r.
func LoadDefinition(r io.Reader) (*Definition, error) {
	def := &Definition{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(def)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode pipeline definition")
	}

	err = def.check()
	if err != nil {
		return nil, err
	}

	return def, nil
}

// LoadDefinitionFile decodes the definition stored in path.
func LoadDefinitionFile(path string) (*Definition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer file.Close()

	def, err := LoadDefinition(file)
	if err != nil {
		return nil, errors.Wrapf(err, "file %s", path)
	}

	return def, nil
}

func (d *Definition) check() error {
	if len(d.Modules) == 0 {
		return errors.Wrap(ErrInvalidDefinition, "no module declared")
	}

	for name, module := range d.Modules {
		if module.Type == "" {
			return errors.Wrapf(ErrInvalidDefinition, "module %s has no type", name)
		}
	}

	for _, name := range d.Chain {
		if _, ok := d.Modules[name]; !ok {
			return errors.Wrapf(ErrInvalidDefinition, "chain references unknown module %s", name)
		}
	}

	return nil
}

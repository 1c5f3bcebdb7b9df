package query

import "github.com/pkg/errors"

var (
	ErrModuleExists      = errors.New("module already exists")
	ErrModuleNotFound    = errors.New("module not found")
	ErrNilComponent      = errors.New("component must be set")
	ErrCycle             = errors.New("link would create a cycle")
	ErrAmbiguousKey      = errors.New("key is ambiguous")
	ErrKeyAlreadyLinked  = errors.New("destination key already linked")
	ErrUnknownKey        = errors.New("unknown key")
	ErrMissingInput      = errors.New("missing required input")
	ErrInvalidCondition  = errors.New("invalid link condition")
	ErrNoModules         = errors.New("pipeline has no module")
	ErrSingleRoot        = errors.New("pipeline must have exactly one root module")
	ErrSingleLeaf        = errors.New("pipeline must have exactly one leaf module, use RunMultiple")
	ErrNotRoot           = errors.New("module is not a root")
	ErrNoOutput          = errors.New("leaf module did not run")
	ErrUnexpectedType    = errors.New("unexpected input type")
	ErrUnknownModuleType = errors.New("unknown module type")
	ErrInvalidDefinition = errors.New("invalid pipeline definition")
)

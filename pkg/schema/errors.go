package schema

import "github.com/pkg/errors"

var (
	ErrUnknownNodeKind     = errors.New("unknown node kind")
	ErrUnknownMetadataMode = errors.New("unknown metadata mode")
)

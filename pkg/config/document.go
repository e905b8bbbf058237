package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Document is the untyped view of a configuration file, for callers that need a key as it is
// written.
type Document struct {
	root map[string]any
}

// LoadDocument reads the configuration at path without validating it.
func LoadDocument(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config file %s", path)
	}

	return ParseDocument(content)
}

func ParseDocument(content []byte) (*Document, error) {
	root := map[string]any{}

	err := yaml.Unmarshal(content, &root)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode yaml")
	}

	return &Document{root: root}, nil
}

// Get walks the document following keys. It fails with ErrMissingKey naming the dotted path of the
// first key that cannot be found.
func (d *Document) Get(keys ...string) (any, error) {
	var current any = d.root

	for i, key := range keys {
		section, ok := current.(map[string]any)
		if !ok {
			return nil, errors.Wrapf(ErrMissingKey, "%s is not a mapping", strings.Join(keys[:i], "."))
		}

		current, ok = section[key]
		if !ok {
			return nil, errors.Wrap(ErrMissingKey, strings.Join(keys[:i+1], "."))
		}
	}

	return current, nil
}

// Package s3uri parses and builds s3:// locations.
package s3uri

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const scheme = "s3"

var ErrInvalidURI = errors.New("invalid s3 uri")

// Location is a bucket and an optional key.
type Location struct {
	Bucket string
	Key    string
}

// Parse splits an s3://bucket/key URI.
func Parse(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, errors.Wrapf(ErrInvalidURI, "%s: %s", uri, err)
	}
	if u.Scheme != scheme || u.Host == "" {
		return Location{}, errors.Wrap(ErrInvalidURI, uri)
	}

	return Location{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
}

func (l Location) String() string {
	if l.Key == "" {
		return scheme + "://" + l.Bucket
	}

	return scheme + "://" + l.Bucket + "/" + l.Key
}

// Join appends path elements to base, which can be an s3:// URI or a plain prefix.
// Empty elements are skipped and a trailing slash on base is kept single.
func Join(base string, elems ...string) string {
	res := strings.TrimRight(base, "/")
	for _, elem := range elems {
		elem = strings.Trim(elem, "/")
		switch {
		case elem == "":
		case res == "":
			res = elem
		default:
			res += "/" + elem
		}
	}

	return res
}

// Resolve returns path when it is already an s3:// URI, or path joined to base otherwise.
func Resolve(base, path string) string {
	if strings.HasPrefix(path, scheme+"://") {
		return path
	}

	return Join(base, path)
}

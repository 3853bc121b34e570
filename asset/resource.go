package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedScheme = errors.New("resource: unsupported scheme")
	ErrFetch             = errors.New("resource: could not fetch")
)

// A Resource is a readable stream backed by a local file or an http(s) URL.
type Resource struct {
	io.ReadCloser
	url *url.URL
}

// Location of the resource.
func (r *Resource) Path() string {
	return r.url.String()
}

// Name of the resource without its directory.
func (r *Resource) Base() string {
	if r.IsRemote() {
		return path.Base(r.url.Path)
	}
	return filepath.Base(r.url.Path)
}

// Report whether the resource is streamed over http(s).
func (r *Resource) IsRemote() bool {
	return r.url.Scheme != ""
}

// Read the remaining contents and close the resource.
func (r *Resource) ReadAll() ([]byte, error) {
	defer r.Close()
	return io.ReadAll(r)
}

// Open a resource. If relTo is not nil and location is a relative path, it is
// resolved against the directory of relTo, so a job file fetched over http
// can reference volumes next to it.
func Open(ctx context.Context, location string, relTo *Resource) (*Resource, error) {
	target, err := resolve(location, relTo)
	if err != nil {
		return nil, err
	}

	var reader io.ReadCloser
	switch target.Scheme {
	case "":
		reader, err = os.Open(filepath.Clean(target.Path))
		if err != nil {
			return nil, err
		}
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w '%s': %v", ErrFetch, target, err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w '%s': status %d", ErrFetch, target, resp.StatusCode)
		}
		reader = resp.Body
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnsupportedScheme, target.Scheme)
	}

	return &Resource{ReadCloser: reader, url: target}, nil
}

// Read a whole resource.
func ReadAll(ctx context.Context, location string, relTo *Resource) ([]byte, error) {
	res, err := Open(ctx, location, relTo)
	if err != nil {
		return nil, err
	}
	return res.ReadAll()
}

func resolve(location string, relTo *Resource) (*url.URL, error) {
	// Windows style separators are accepted in job files.
	target, err := url.Parse(strings.Replace(location, `\`, `/`, -1))
	if err != nil {
		return nil, err
	}
	if target.Scheme != "" || relTo == nil || filepath.IsAbs(target.Path) {
		return target, nil
	}

	if relTo.IsRemote() {
		return relTo.url.ResolveReference(target), nil
	}
	base, err := filepath.Abs(relTo.url.Path)
	if err != nil {
		return nil, fmt.Errorf("resource: could not detect abs path for %s: %w", relTo.url.Path, err)
	}
	return &url.URL{Path: filepath.Join(filepath.Dir(base), target.Path)}, nil
}

// Wrap a reader as a resource named name.
func FromStream(name string, source io.Reader) *Resource {
	target, err := url.Parse(name)
	if err != nil {
		target = &url.URL{Path: name}
	}
	return &Resource{ReadCloser: io.NopCloser(source), url: target}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidImageRef = errors.New("invalid image reference")

// ImageRef identifies a container image as {registry}/{repository}:{tag}.
type ImageRef struct {
	Registry   string
	Repository string
	Tag        string
}

// ParseImageRef splits a fully qualified reference back into its parts.
// Only the canonical {registry}/{repository}:{tag} shape is accepted; bare
// repository names are rejected because every image caravel touches is
// registry-qualified.
func ParseImageRef(s string) (ImageRef, error) {
	slash := strings.Index(s, "/")
	if slash <= 0 {
		return ImageRef{}, fmt.Errorf("%w: %q has no registry", ErrInvalidImageRef, s)
	}
	colon := strings.LastIndex(s, ":")
	if colon < slash {
		return ImageRef{}, fmt.Errorf("%w: %q has no tag", ErrInvalidImageRef, s)
	}
	ref := ImageRef{
		Registry:   s[:slash],
		Repository: s[slash+1 : colon],
		Tag:        s[colon+1:],
	}
	if ref.Repository == "" || ref.Tag == "" {
		return ImageRef{}, fmt.Errorf("%w: %q", ErrInvalidImageRef, s)
	}
	return ref, nil
}

// String renders the reference pushed to the registry and substituted into
// the deployment manifest.
func (r ImageRef) String() string {
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
}

// Package urlnorm produces the canonical base URL used for listing identity,
// deduplication, and object-storage key derivation (C1 in the component
// design: URL Normalizer).
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Normalize returns the canonical base URL: lowercased host with a leading
// "www." stripped, query string and fragment dropped, trailing slash
// stripped on non-root paths, path case preserved.
//
// Normalize is idempotent: Normalize(Normalize(u)) == Normalize(u) for any
// parseable u.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("urlnorm: parse %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("urlnorm: %q is not an absolute URL", rawURL)
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	path := u.Path
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}

	out := url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   host,
		Path:   path,
	}
	return out.String(), nil
}

// Domain returns the normalized host only (no scheme, no path), suitable as
// a Store's primary key.
func Domain(rawURL string) (string, error) {
	base, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("urlnorm: reparse %q: %w", base, err)
	}
	return u.Host, nil
}

// ArtifactDigest returns the 16 hex-character truncated SHA-256 digest of a
// URL used by the object-store path contract (§6):
// path(u,t) = normalised_domain(u) + "/" + ArtifactDigest(u) + "/latest." + ext(t)
func ArtifactDigest(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:16]
}

// ArtifactPath builds the object-store key for artifact type ext (html, png)
// of the page at rawURL.
func ArtifactPath(rawURL, ext string) (string, error) {
	domain, err := Domain(rawURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/latest.%s", domain, ArtifactDigest(rawURL), ext), nil
}

// ImagePath builds the object-store key for a cached product image, keyed by
// SHA256(image_url)[0:16] + ext, per the §6 "images" bucket contract.
func ImagePath(imageURL, ext string) string {
	return fmt.Sprintf("%s.%s", ArtifactDigest(imageURL), ext)
}

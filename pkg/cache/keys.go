package cache

import "strconv"

// Keyer builds cache keys.
type Keyer interface {
	// CollectionKey identifies the collection converted from a store with
	// the given fingerprint.
	CollectionKey(fingerprint string, opts CollectionKeyOpts) string
}

// CollectionKeyOpts holds every option that changes a converted collection.
type CollectionKeyOpts struct {
	PixelScale float64 `json:"pixel_scale"`
}

// DefaultKeyer hashes key parts with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// CollectionKey returns "collection:<sha256>".
func (DefaultKeyer) CollectionKey(fingerprint string, opts CollectionKeyOpts) string {
	// FormatFloat keeps 0.2125 and 0.21250000000000002 apart.
	return hashKey("collection", fingerprint, strconv.FormatFloat(opts.PixelScale, 'g', -1, 64))
}

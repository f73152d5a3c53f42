package cache

// ScopedKeyer wraps a Keyer with a prefix so that several deployments can
// share a backend without seeing each other's entries.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "xq:lab-a:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// A nil inner keyer uses DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// CollectionKey returns the prefixed collection key.
func (k *ScopedKeyer) CollectionKey(fingerprint string, opts CollectionKeyOpts) string {
	return k.prefix + k.inner.CollectionKey(fingerprint, opts)
}

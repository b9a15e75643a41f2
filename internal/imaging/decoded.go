package imaging

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// DecodedCache keeps decoded data URI images so that repeated hit tests on the
// same picture do not base64 and PNG decode it again. Entries are keyed by the
// content hash, so a replaced image never reads back a stale decode.
type DecodedCache struct {
	entries *cache.Cache
	decode  func(string) (image.Image, string, error)
	decodes atomic.Int64
}

type decoded struct {
	img image.Image
	err error
}

// NewDecodedCache keeps each decode for ttl after its last use.
func NewDecodedCache(ttl time.Duration) *DecodedCache {
	return &DecodedCache{
		entries: cache.New(ttl, 2*ttl),
		decode:  DecodeDataURI,
	}
}

// Image returns the decoded image of uri. A failed decode is cached too.
// A nil cache decodes every time.
func (c *DecodedCache) Image(uri string) (image.Image, error) {
	if c == nil {
		img, _, err := DecodeDataURI(uri)
		return img, err
	}
	sum := sha256.Sum256([]byte(uri))
	key := hex.EncodeToString(sum[:])
	if v, found := c.entries.Get(key); found {
		c.entries.SetDefault(key, v) // slide expiry
		d := v.(decoded)
		return d.img, d.err
	}

	c.decodes.Add(1)
	img, _, err := c.decode(uri)
	c.entries.SetDefault(key, decoded{img: img, err: err})
	return img, err
}

// Decodes counts the decodes actually performed.
func (c *DecodedCache) Decodes() int64 { return c.decodes.Load() }

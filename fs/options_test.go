package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithImageSizeSetsOption(t *testing.T) {
	o := NewOptions(WithImageSize(64 << 20))
	assert.Equal(t, int64(64<<20), o.ImageSize)
}

func TestNewOptionsDefaultsToZero(t *testing.T) {
	o := NewOptions()
	assert.Equal(t, int64(0), o.ImageSize)
}

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	iPhoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15"
	iPadUA    = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15"
	androidUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36"
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Platform
	}{
		{"iphone", iPhoneUA, IOS},
		{"ipad", iPadUA, IOS},
		{"android", androidUA, Android},
		{"desktop", desktopUA, Desktop},
		{"empty", "", Desktop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.ua))
		})
	}
}

func TestDefaultFacing(t *testing.T) {
	assert.Equal(t, FacingEnvironment, DefaultFacing(IOS, PurposeDocument))
	assert.Equal(t, FacingEnvironment, DefaultFacing(Android, PurposeDocument))
	assert.Equal(t, FacingUser, DefaultFacing(Desktop, PurposeDocument))
	assert.Equal(t, FacingUser, DefaultFacing(IOS, PurposeLiveness))
	assert.Equal(t, FacingUser, DefaultFacing(Desktop, PurposeLiveness))
}

func TestCaptureAttribute(t *testing.T) {
	assert.Equal(t, FacingEnvironment, CaptureAttribute(IOS, PurposeDocument))
	assert.Equal(t, "", CaptureAttribute(Android, PurposeDocument))
	assert.Equal(t, "", CaptureAttribute(Desktop, PurposeDocument))
	assert.Equal(t, FacingUser, CaptureAttribute(Android, PurposeLiveness))
}

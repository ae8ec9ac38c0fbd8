// Package device detects the client platform from its user agent and picks
// the default camera for each capture purpose.
package device

import "regexp"

// Platform is the client OS family
type Platform string

const (
	IOS     Platform = "ios"
	Android Platform = "android"
	Desktop Platform = "desktop"
)

// Purpose says what a capture is for
type Purpose string

const (
	PurposeDocument Purpose = "document"
	PurposeLiveness Purpose = "liveness"
)

// Facing modes understood by the media layer
const (
	FacingEnvironment = "environment"
	FacingUser        = "user"
)

var (
	iosPattern     = regexp.MustCompile(`iPad|iPhone|iPod`)
	androidPattern = regexp.MustCompile(`Android`)
)

// Detect classifies a user agent string
func Detect(userAgent string) Platform {
	switch {
	case iosPattern.MatchString(userAgent):
		return IOS
	case androidPattern.MatchString(userAgent):
		return Android
	default:
		return Desktop
	}
}

// IsMobile reports whether the platform is a phone or tablet OS
func (p Platform) IsMobile() bool {
	return p == IOS || p == Android
}

// DefaultFacing returns the camera to request first. Documents are shot
// with the rear camera on phones; liveness always uses the front camera.
func DefaultFacing(p Platform, purpose Purpose) string {
	if purpose == PurposeDocument && p.IsMobile() {
		return FacingEnvironment
	}
	return FacingUser
}

// CaptureAttribute returns the capture hint for the file-input fallback.
// An empty string means the attribute is omitted.
func CaptureAttribute(p Platform, purpose Purpose) string {
	switch purpose {
	case PurposeLiveness:
		return FacingUser
	case PurposeDocument:
		if p == IOS {
			return FacingEnvironment
		}
	}
	return ""
}

package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
)

// JPEGQuality is the encoder quality used for every frame and crop
const JPEGQuality = 80

// Source records where a captured image came from
type Source string

const (
	SourceCamera Source = "camera"
	SourceCrop   Source = "crop"
	SourceUpload Source = "upload"
)

var (
	ErrInvalidImage     = errors.New("invalid image payload")
	ErrUnsupportedMedia = errors.New("payload is not an image")
)

// CapturedImage is an encoded image carried as a data URI
type CapturedImage struct {
	DataURI string `json:"data_uri"`
	Source  Source `json:"source"`
}

// Empty reports whether no image has been captured
func (c CapturedImage) Empty() bool {
	return c.DataURI == ""
}

// EncodeJPEG encodes img as a JPEG data URI
func EncodeJPEG(img image.Image, src Source) (CapturedImage, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return CapturedImage{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return CapturedImage{
		DataURI: toDataURI("image/jpeg", buf.Bytes()),
		Source:  src,
	}, nil
}

// Decode returns the pixels of a captured image
func Decode(c CapturedImage) (image.Image, error) {
	_, data, err := parseDataURI(c.DataURI)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// DecodeUpload validates a file-input payload. It accepts raw image bytes
// or an image data URI and keeps the original encoding.
func DecodeUpload(payload []byte) (CapturedImage, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return CapturedImage{}, ErrInvalidImage
	}

	mime, data := "", payload
	if bytes.HasPrefix(payload, []byte("data:")) {
		var err error
		mime, data, err = parseDataURI(string(payload))
		if err != nil {
			return CapturedImage{}, err
		}
	} else {
		mime = http.DetectContentType(payload)
	}
	if !strings.HasPrefix(mime, "image/") {
		return CapturedImage{}, ErrUnsupportedMedia
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return CapturedImage{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return CapturedImage{
		DataURI: toDataURI(mime, data),
		Source:  SourceUpload,
	}, nil
}

func toDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func parseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidImage
	}
	header, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidImage
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, ErrInvalidImage
	}
	if !strings.HasPrefix(mime, "image/") {
		return "", nil, ErrUnsupportedMedia
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return mime, data, nil
}

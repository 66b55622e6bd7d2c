package stream

import (
	"bytes"
	"image/jpeg"
)

// ReencodeJPEG re-compresses a frame at the requested quality (1-99).
// Quality outside that range, or bytes that do not decode as JPEG, pass
// through untouched.
func ReencodeJPEG(frame []byte, quality int) []byte {
	if quality < 1 || quality > 99 {
		return frame
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return frame
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return frame
	}
	return buf.Bytes()
}

package preview

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"

	"github.com/disintegration/imaging"
)

// bufferPool pools bytes.Buffer instances for JPEG encoding.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 512*1024 {
		return // don't pool oversized buffers
	}
	bufferPool.Put(buf)
}

// encodeJPEG encodes an image as JPEG with the specified quality (1-100).
// The returned slice is owned by the caller.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	buf := getBuffer()
	defer putBuffer(buf)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// scaleImage downscales an image by the given factor (0.0-1.0). Factors at
// or above 1.0 return the image unchanged.
func scaleImage(img *image.RGBA, factor float64) image.Image {
	if factor >= 1.0 {
		return img
	}
	if factor <= 0 {
		factor = 0.1
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	if w < 1 {
		w = 1
	}
	return imaging.Resize(img, w, 0, imaging.Box)
}

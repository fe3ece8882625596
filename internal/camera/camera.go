// Package camera tracks the per-client JPEG streams relayed to the monitor.
package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Placeholder dimensions match the e-puck camera preview.
const (
	PlaceholderWidth  = 160
	PlaceholderHeight = 120
)

// ErrMalformedFrame is returned for frames that do not decode as JPEG.
var ErrMalformedFrame = errors.New("camera: malformed frame")

// Frame is a validated JPEG image.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Decode validates a JPEG frame by reading its header. The frame data is
// copied so the caller may reuse its buffer.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, errors.Wrap(ErrMalformedFrame, "empty frame")
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return Frame{
		Data:   append([]byte(nil), data...),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

var (
	placeholderOnce sync.Once
	placeholder     []byte
)

// Placeholder returns the JPEG shown when a feed has no usable frame.
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		img := image.NewGray(image.Rect(0, 0, PlaceholderWidth, PlaceholderHeight))
		for y := 0; y < PlaceholderHeight; y++ {
			for x := 0; x < PlaceholderWidth; x++ {
				v := uint8(0x40)
				// Diagonal cross so the placeholder is recognisable.
				if x*PlaceholderHeight/PlaceholderWidth == y || (PlaceholderWidth-1-x)*PlaceholderHeight/PlaceholderWidth == y {
					v = 0xa0
				}
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60}); err == nil {
			placeholder = buf.Bytes()
		}
	})
	return placeholder
}

// Feed is the state of one client's camera stream.
type Feed struct {
	Active    bool      `json:"active"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Frames    uint64    `json:"frames"`
	Malformed uint64    `json:"malformed"`
	Dropped   uint64    `json:"dropped"`
	UpdatedAt time.Time `json:"updated_at"`
	frame     []byte
}

// Start marks the stream active. Frames are ignored until then.
func (f *Feed) Start(now time.Time) {
	f.Active = true
	f.UpdatedAt = now
}

// Stop clears the latest frame and marks the stream inactive.
func (f *Feed) Stop(now time.Time) {
	f.Active = false
	f.frame = nil
	f.Width, f.Height = 0, 0
	f.UpdatedAt = now
}

// Push offers a raw frame to the feed. Frames arriving while inactive are
// dropped; malformed frames are counted and leave the previous frame in place.
func (f *Feed) Push(data []byte, now time.Time) error {
	if !f.Active {
		f.Dropped++
		return nil
	}
	fr, err := Decode(data)
	if err != nil {
		f.Malformed++
		return err
	}
	f.frame = fr.Data
	f.Width, f.Height = fr.Width, fr.Height
	f.Frames++
	f.UpdatedAt = now
	return nil
}

// HasFrame reports whether a valid frame is available.
func (f *Feed) HasFrame() bool {
	return f.frame != nil
}

// Image returns the latest frame, or the placeholder when there is none.
func (f *Feed) Image() []byte {
	if f.frame != nil {
		return f.frame
	}
	return Placeholder()
}

// Clone returns an independent copy of the feed.
func (f *Feed) Clone() Feed {
	c := *f
	if f.frame != nil {
		c.frame = append([]byte(nil), f.frame...)
	}
	return c
}

package engine

// PixelFormat identifies the layout of raw frame data.
type PixelFormat int

const (
	PixelFormatRGBA32 PixelFormat = iota // packed RGBA, 4 bytes per pixel
	PixelFormatI420                      // YUV 4:2:0 planar
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatI420:
		return "I420"
	default:
		return "Unknown"
	}
}

// FrameSize returns the buffer size one frame of the format needs.
func (p PixelFormat) FrameSize(width, height int) int {
	switch p {
	case PixelFormatRGBA32:
		return width * height * 4
	case PixelFormatI420:
		// Y plane plus quarter-size U and V planes.
		return width*height + (width/2)*(height/2)*2
	default:
		return 0
	}
}

// Frame is one decoded video frame. Pix may alias engine-owned memory and is
// only valid until the producing callback returns.
type Frame struct {
	Pix             []byte
	Width           int
	Height          int
	Stride          int
	Format          PixelFormat
	TimestampMillis int64
}

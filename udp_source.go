package ipcam

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mike1808/h264decoder/decoder"
	"github.com/pkg/errors"
	"github.com/projecthunt/reuseable"
	"gocv.io/x/gocv"
)

// maxDatagram fits one ethernet frame
const maxDatagram = 1514

// UDPSource receives H264 over UDP, each datagram prefixed with a fixed size vendor header
type UDPSource struct {
	conn        net.PacketConn
	decoder     *decoder.H264Decoder
	headerSize  int
	readTimeout time.Duration
	buf         []byte

	closeOnce sync.Once
	closeErr  error
}

// OpenUDPSource listens on the camera address and port
func OpenUDPSource(cs CameraSettings) (*UDPSource, error) {
	addr := fmt.Sprintf("%s:%d", cs.Address, cs.Port)

	pc, err := reuseable.ListenPacket("udp4", addr)
	if err != nil {
		return nil, &SourceError{URL: "udp://" + addr, Err: err}
	}

	d, err := decoder.New(decoder.PixelFormatBGR)
	if err != nil {
		_ = pc.Close()
		return nil, &SourceError{URL: "udp://" + addr, Err: errors.Wrap(err, "failed to create H264 decoder")}
	}

	return &UDPSource{
		conn:        pc,
		decoder:     d,
		headerSize:  cs.HeaderSize,
		readTimeout: time.Duration(cs.ReadTimeoutMs) * time.Millisecond,
		buf:         make([]byte, maxDatagram),
	}, nil
}

// Read blocks until one frame is decoded. A silent camera for longer than the read timeout ends the stream.
func (s *UDPSource) Read(dst *gocv.Mat) error {
	for {
		if s.readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		n, _, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			return errors.Wrap(ErrEndOfStream, err.Error())
		}
		if n <= s.headerSize {
			continue
		}

		frames, err := s.decoder.Decode(s.buf[s.headerSize:n])
		if err != nil || len(frames) == 0 {
			// partial NAL units are normal until a keyframe arrives
			continue
		}

		f := frames[0]
		pixels, ok := packBGR(f.Data, f.Width, f.Height, f.Stride)
		if !ok {
			continue
		}
		mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, pixels)
		if err != nil {
			continue
		}
		mat.CopyTo(dst)
		_ = mat.Close()
		return nil
	}
}

// packBGR drops the decoder's per-row padding so rows are exactly width*3 bytes.
// ok is false when data is too short for the given geometry.
func packBGR(data []byte, width, height, stride int) ([]byte, bool) {
	rowLen := width * 3
	if width <= 0 || height <= 0 {
		return nil, false
	}
	if stride <= 0 {
		stride = rowLen
	}
	if stride < rowLen || len(data) < stride*(height-1)+rowLen {
		return nil, false
	}
	if stride == rowLen {
		return data[:rowLen*height], true
	}

	packed := make([]byte, rowLen*height)
	for y := 0; y < height; y++ {
		copy(packed[y*rowLen:(y+1)*rowLen], data[y*stride:y*stride+rowLen])
	}
	return packed, true
}

// Close releases the socket and the decoder once
func (s *UDPSource) Close() error {
	s.closeOnce.Do(func() {
		s.decoder.Close()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

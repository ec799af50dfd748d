package bmp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadFrame reads one length-prefixed BMP message from the stream: the
// 6-byte common header, then exactly length-6 bytes of payload. The
// returned frame includes the header. io.EOF at a message boundary is
// a clean session end; anything else is a framing error that must
// terminate the session.
func ReadFrame(r io.Reader) (msgType uint8, frame []byte, err error) {
	header := make([]byte, CommonHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("bmp: reading common header: %w", err)
	}

	if header[0] != BMPVersion {
		return 0, nil, fmt.Errorf("bmp: unsupported version %d", header[0])
	}

	msgLength := binary.BigEndian.Uint32(header[1:5])
	msgType = header[5]

	if msgLength < CommonHeaderSize {
		return 0, nil, fmt.Errorf("bmp: declared msg_length %d smaller than common header", msgLength)
	}
	if msgLength > maxFrameSize {
		return 0, nil, fmt.Errorf("bmp: declared msg_length %d exceeds frame cap", msgLength)
	}

	frame = make([]byte, msgLength)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[CommonHeaderSize:]); err != nil {
		return 0, nil, fmt.Errorf("bmp: reading payload (%d bytes): %w", msgLength-CommonHeaderSize, err)
	}

	return msgType, frame, nil
}

// Package capture appends raw BMP frames to a file for offline replay,
// optionally zstd-compressed per frame.
package capture

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("capture: zstd encoder init: %v", err))
	}
}

// Writer appends length-prefixed frames to the capture file. The record
// format is a 1-byte compression marker and a 4-byte big-endian length
// followed by the (possibly compressed) frame bytes.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	compress bool
	logger   *zap.Logger
}

func NewWriter(path string, compress bool, logger *zap.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening capture file %s: %w", path, err)
	}
	logger.Info("BMP capture enabled", zap.String("path", path), zap.Bool("compress", compress))
	return &Writer{file: f, compress: compress, logger: logger}, nil
}

// WriteFrame appends one raw BMP frame.
func (w *Writer) WriteFrame(frame []byte) error {
	data := frame
	marker := byte(0)
	if w.compress {
		data = zstdEncoder.EncodeAll(frame, nil)
		marker = 1
	}

	header := make([]byte, 5)
	header[0] = marker
	binary.BigEndian.PutUint32(header[1:5], uint32(len(data)))

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(header); err != nil {
		return fmt.Errorf("writing capture header: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("writing capture frame: %w", err)
	}
	return nil
}

// Close flushes and closes the capture file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

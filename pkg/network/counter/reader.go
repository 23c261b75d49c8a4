// Package counter measures bodies read by the network layer.
package counter

import (
	"errors"
	"io"
)

// ReadCloser wraps a response body to count the read bytes.
// The OnRead callback is called after each read, the OnClose callback is called once, on the first Close.
type ReadCloser struct {
	wrapped io.ReadCloser
	onRead  OnRead
	onClose OnClose
	bytes   int64
	readErr error
	closed  bool
}

// OnRead receives the number of bytes read by the last call and the total count.
type OnRead func(n int, total int64)

// OnClose receives the total count and the read error, or the close error.
type OnClose func(bytes int64, err error)

func NewReadCloser(wrapped io.ReadCloser, onClose OnClose) *ReadCloser {
	return &ReadCloser{wrapped: wrapped, onClose: onClose}
}

// WithOnRead registers the OnRead callback.
func (w *ReadCloser) WithOnRead(fn OnRead) *ReadCloser {
	w.onRead = fn
	return w
}

func (w *ReadCloser) Bytes() int64 {
	return w.bytes
}

func (w *ReadCloser) Read(b []byte) (int, error) {
	n, err := w.wrapped.Read(b)
	w.bytes += int64(n)
	w.readErr = err
	if w.onRead != nil && n > 0 {
		w.onRead(n, w.bytes)
	}
	return n, err
}

func (w *ReadCloser) Close() error {
	closeErr := w.wrapped.Close()
	if w.closed {
		return closeErr
	}
	w.closed = true

	if w.onClose != nil {
		// Read error has priority, the close error is used if the body was read to the end
		var onCloseErr error
		if w.readErr != nil && !errors.Is(w.readErr, io.EOF) {
			onCloseErr = w.readErr
		} else if closeErr != nil {
			onCloseErr = closeErr
		}
		w.onClose(w.bytes, onCloseErr)
	}
	return closeErr
}

package util

import (
	"context"
	"io"
	"sync"
)

// cancelOnClose releases a context when the body it guards is closed.
type cancelOnClose struct {
	io.ReadCloser
	once   sync.Once
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}

// CancelOnClose wraps body so that cancel runs once, when it is closed.
// A nil body cancels immediately.
func CancelOnClose(body io.ReadCloser, cancel context.CancelFunc) io.ReadCloser {
	if body == nil {
		cancel()
		return nil
	}
	return &cancelOnClose{ReadCloser: body, cancel: cancel}
}

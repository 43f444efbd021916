package convert

import (
	"io"
	"net/http"
)

const defaultMaxDownloads = 4

// limitedTransport caps the number of file_url downloads in flight. A
// request waits for a slot or for its context to be cancelled.
type limitedTransport struct {
	base  http.RoundTripper
	slots chan struct{}
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case t.slots <- struct{}{}:
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		<-t.slots
		return nil, err
	}
	resp.Body = &slotBody{ReadCloser: resp.Body, release: func() { <-t.slots }}
	return resp, nil
}

// slotBody frees its download slot when the body is closed.
type slotBody struct {
	io.ReadCloser
	release func()
	closed  bool
}

func (b *slotBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.closed {
		b.closed = true
		b.release()
	}
	return err
}

// limitClient returns a copy of base whose transport allows at most max
// concurrent downloads. base is not modified.
func limitClient(base *http.Client, max int) *http.Client {
	if max <= 0 {
		max = defaultMaxDownloads
	}
	client := *base
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	client.Transport = &limitedTransport{base: rt, slots: make(chan struct{}, max)}
	return &client
}

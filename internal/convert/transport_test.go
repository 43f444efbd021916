package convert

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimitClientHoldsSlotUntilBodyClosed(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer remote.Close()

	base := &http.Client{}
	client := limitClient(base, 1)
	if base.Transport != nil {
		t.Fatalf("expected base client left untouched")
	}

	first, err := client.Get(remote.URL)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, remote.URL, nil)
	if _, err := client.Do(req); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second download to wait for a slot, got %v", err)
	}

	_, _ = io.Copy(io.Discard, first.Body)
	_ = first.Body.Close()
	_ = first.Body.Close()

	second, err := client.Get(remote.URL)
	if err != nil {
		t.Fatalf("expected slot released, got %v", err)
	}
	_ = second.Body.Close()
}

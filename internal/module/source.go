package module

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const maxModuleBytes = 64 << 20

// Source yields the module binary.
type Source interface {
	Bytes(ctx context.Context) ([]byte, error)
	String() string
}

// FileSource reads the module from disk.
type FileSource string

func (s FileSource) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(string(s))
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	return b, nil
}

func (s FileSource) String() string { return string(s) }

// URLSource downloads the module.
type URLSource struct {
	URL    string
	Client *http.Client
}

func (s URLSource) Bytes(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch module: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleBytes))
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	return b, nil
}

func (s URLSource) String() string { return s.URL }

// BytesSource serves an in-memory module.
type BytesSource []byte

func (s BytesSource) Bytes(context.Context) ([]byte, error) { return s, nil }

func (s BytesSource) String() string { return fmt.Sprintf("<%d bytes>", len(s)) }

// SourceFor picks a URL or file source from ref.
func SourceFor(ref string) Source {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return URLSource{URL: ref}
	}
	return FileSource(ref)
}

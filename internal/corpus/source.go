package corpus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Open returns a reader for src, which is either a local path or an
// http(s) URL. The caller closes the reader.
func Open(ctx context.Context, src string, timeout time.Duration) (io.ReadCloser, error) {
	if !isURL(src) {
		f, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", src, err)
		}
		return f, nil
	}

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", src, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", src, resp.Status)
	}

	return resp.Body, nil
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// LoadDocumentsFrom opens src and loads labeled documents from it.
func LoadDocumentsFrom(ctx context.Context, src string, timeout time.Duration, labeler *Labeler) ([]Document, error) {
	rc, err := Open(ctx, src, timeout)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	docs, err := LoadDocuments(rc, labeler)
	if err != nil {
		return nil, fmt.Errorf("load documents from %s: %w", src, err)
	}
	return docs, nil
}

// LoadScenariosFrom opens src and loads scenarios from it.
func LoadScenariosFrom(ctx context.Context, src string, timeout time.Duration) ([]Scenario, error) {
	rc, err := Open(ctx, src, timeout)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	scenarios, err := LoadScenarios(rc)
	if err != nil {
		return nil, fmt.Errorf("load scenarios from %s: %w", src, err)
	}
	return scenarios, nil
}

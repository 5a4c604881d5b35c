package wikidata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LogEntry records the outcome of an Acquire call: the dump file selected,
// the URL it came from, and the size and checksum of what was actually
// written to dst, timestamped at completion.
type LogEntry struct {
	Timestamp time.Time
	FileName  string
	URL       string
	Bytes     int64
	SHA256    string
}

// Acquire fetches the status manifest at manifestURL, selects the latest
// dump per SelectLatestDump, downloads it via HTTPDownload into dst, and
// returns a LogEntry recording the transfer. It is the single call hosts
// should make to go from manifest URL to downloaded, logged bytes. The
// SHA-256 in the LogEntry is computed from the bytes written; it is not
// compared against the digests the manifest lists. SelectLatestDump and
// HTTPDownload stay exported separately for callers that need to
// substitute a different manifest source or transport.
func Acquire(ctx context.Context, client *http.Client, manifestURL string, dst io.Writer, maxAttempts int, userAgent string) (*LogEntry, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build manifest request: %w", ErrTransport, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch manifest: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: manifest status %d", ErrTransport, resp.StatusCode)
	}

	desc, err := SelectLatestDump(resp.Body)
	if err != nil {
		return nil, err
	}

	hasher := sha256.New()
	counter := &countingWriter{}
	w := io.MultiWriter(dst, hasher, counter)

	if err := HTTPDownload(ctx, client, desc.URL, w, maxAttempts, userAgent); err != nil {
		return nil, err
	}

	return &LogEntry{
		Timestamp: time.Now(),
		FileName:  desc.FileName,
		URL:       desc.URL,
		Bytes:     counter.n,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

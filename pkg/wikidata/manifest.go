package wikidata

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ManifestFile describes one file entry within a manifest job.
type ManifestFile struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	SHA1   string `json:"sha1,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// ManifestJob is one job within the status manifest's "jobs" object.
type ManifestJob struct {
	Status string                  `json:"status"`
	Files  map[string]ManifestFile `json:"files"`
}

// Manifest is the dump status document: a JSON object with a "jobs" map.
type Manifest struct {
	Jobs map[string]ManifestJob `json:"jobs"`
}

// Descriptor records the outcome of selecting a dump file from a manifest.
type Descriptor struct {
	FileName string
	URL      string
	Bytes    int64
	SHA1     string
	SHA256   string
}

const dumpSuffix = "-all.json.bz2"

// SelectLatestDump parses a status manifest from r and selects the latest
// file matching "*-all.json.bz2" by lexical name ordering (dump file names
// are date-prefixed, so lexical order is chronological order). It fails
// with ErrMissingDump if no job has a matching file.
func SelectLatestDump(r io.Reader) (*Descriptor, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrParseEntity, err)
	}

	var candidates []ManifestFile
	for _, job := range m.Jobs {
		for _, f := range job.Files {
			if strings.HasSuffix(f.Name, dumpSuffix) {
				candidates = append(candidates, f)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no file matching %q", ErrMissingDump, dumpSuffix)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name > candidates[j].Name })
	chosen := candidates[0]

	return &Descriptor{
		FileName: chosen.Name,
		URL:      chosen.URL,
		Bytes:    chosen.Size,
		SHA1:     chosen.SHA1,
		SHA256:   chosen.SHA256,
	}, nil
}

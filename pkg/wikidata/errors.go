package wikidata

import "errors"

var (
	// ErrMissingDump indicates the status manifest has no job matching the
	// selection rule (latest *-all.json.bz2).
	ErrMissingDump = errors.New("wikidata: no matching dump in manifest")
	// ErrTransport indicates a failure fetching the manifest or archive.
	ErrTransport = errors.New("wikidata: transport error")
	// ErrParseEntity indicates a malformed entity line; wrapped with the
	// 1-based line number.
	ErrParseEntity = errors.New("wikidata: failed to parse entity")
	// ErrReadLine indicates a failure reading a line from the dump stream.
	ErrReadLine = errors.New("wikidata: failed to read line")
	// ErrMissingPoi indicates a claim or link references a POI id absent
	// from the pois table; the caller must write POI rows first.
	ErrMissingPoi = errors.New("wikidata: referenced poi is missing")
)

// Package shadowindex implements the local persistent shadow index
//: a key-value mapping from local path to the
// last-known reconciled state, plus a cache of the remote archive log
// used by the sync engine to avoid re-fetching every Entry on every run.
package shadowindex

// Kind mirrors wire.Kind but lives in this package's vocabulary so
// shadowindex has no import-time dependency on the wire codec.
type Kind uint8

const (
	KindFilePresent Kind = iota
	KindDirectoryPresent
	KindAbsent
)

// ShadowRecord tracks the last-synced state of a local path, keyed externally by
// SanitizedLocalPath.
type ShadowRecord struct {
	Kind                      Kind
	ContentHash               []byte // 32 bytes, FilePresent only
	OriginalSize              int64
	ModifiedAt                int64 // microseconds since epoch
	UnixMode                  *uint32
	LastSeenArchiveRecordedAt int64
}

// ShadowEntry pairs a local path with its record, the unit
// IterDescendants streams.
type ShadowEntry struct {
	LocalPath string
	Record    ShadowRecord
}

// RemoteEntry is the shadow index's cached copy of one archive Entry,
// keyed by its encrypted path.
type RemoteEntry struct {
	EncryptedPath string
	RecordedAt    int64
	SourceID      [16]byte
	Kind          Kind
	ContentHash   []byte
	EncryptedSize int64
	OriginalSize  int64
	ModifiedAt    *int64
	UnixMode      *uint32
}

// Conflict records a BothChanged resolution for the external progress collaborator to report.
type Conflict struct {
	ID                 int64
	LocalPath          string
	DetectedAt         int64
	LocalContentHash   []byte
	RemoteContentHash  []byte
	Resolved           bool
}

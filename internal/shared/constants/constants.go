package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// AuditorTimeout bounds each request made by the header, certificate and
	// fingerprint stages.
	AuditorTimeout = 10 * time.Second
	// ProbeTimeout bounds each vulnerability probe request.
	ProbeTimeout = 15 * time.Second
	// DefaultScanDeadline bounds a whole scan unit.
	DefaultScanDeadline = 10 * time.Minute
	// MaxBodyBytes caps how much of a response body any stage reads.
	MaxBodyBytes = 2 << 20
	// EvidenceSnippetBytes caps body excerpts stored as finding evidence.
	EvidenceSnippetBytes = 256
)

// DefaultUserAgent is sent with every outbound request.
const DefaultUserAgent = "webrecon/1.0 (+authorized security assessment)"

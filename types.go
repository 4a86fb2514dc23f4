package transload

import (
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

// BufferCap is the soft capacity, in bytes, of each leg's bounded FIFO
// buffer (spec §3). A write that pushes occupancy above this threshold is
// still accepted in full; it only flips the leg's stuck/unstuck signal.
const BufferCap = 20 * 1024 * 1024 // 20 MiB

// IdleTimeout is how long a leg may go without forward progress while
// Active before it is aborted (spec §4.1, §5).
const IdleTimeout = 60 * time.Second

// DefaultUserAgent is sent on both the source GET and every upload leg
// request unless the caller supplies their own User-Agent header.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"

// UploadConfig describes one upload destination.
type UploadConfig struct {
	// UploadURL is the destination endpoint.
	UploadURL string
	// Method is "POST" (multipart form, field name "file") or "PUT" (raw
	// body). Empty defaults to "POST".
	Method string
	// FileName is used as-is if set; otherwise it is derived from the
	// source's Content-Disposition header or URL path once, by the
	// coordinator.
	FileName string
	// RandomBytesCount, if non-zero, appends that many cryptographically
	// random bytes to this leg's stream on clean finalization, altering its
	// content hash relative to the source.
	RandomBytesCount uint32
	// Headers are sent verbatim, except Content-Length, which the leg
	// computes itself, and, for POST, Content-Type, which is replaced by
	// the multipart form's content type.
	Headers map[string]string
	// Agent overrides the HTTP client used for this leg's request. Nil uses
	// the session's agent, or a sane default transport.
	Agent *http.Client
}

// SessionConfig carries options shared across the whole transload.
type SessionConfig struct {
	// SaveToLocalPath, if set, additionally writes the downloaded bytes to
	// this local path.
	SaveToLocalPath string
	// CalculateMD5 enables the session-level running MD5 of the source
	// stream (reported in TransloadResult.MD5).
	CalculateMD5 bool
	// Logger receives structured progress/diagnostic output. Nil defaults
	// to log.NewLogger().
	Logger log.Logger
	// Agent overrides the HTTP client used for the source GET and any leg
	// that doesn't specify its own Agent.
	Agent *http.Client
	// EnvRepository, if set, is consulted for TRANSLOAD_SECRET_HEADER_LIST
	// to extend which header names get redacted in logs (see
	// internal/redact.NamesFromEnv); nil means only the built-in names are
	// redacted.
	EnvRepository env.Repository
}

// UploadResult is the caller-visible outcome of a single leg. The
// `uploadedByes` field name is the external contract's (spec §6); the
// misspelling is preserved on the wire via the json tag while the Go
// identifier stays readable.
type UploadResult struct {
	UploadURL        string      `json:"uploadUrl"`
	FileName         string      `json:"fileName,omitempty"`
	Size             uint64      `json:"size"`
	UploadedBytes    uint64      `json:"uploadedByes"`
	RandomBytesCount uint32      `json:"randomBytesCount,omitempty"`
	MD5              string      `json:"md5,omitempty"`
	Response         interface{} `json:"response,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// LocalResult describes the optional local-save side effect.
type LocalResult struct {
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

// TransloadResult is the aggregate outcome of one Transload call, returned
// once every leg has settled.
type TransloadResult struct {
	URL      string         `json:"url"`
	Size     uint64         `json:"size"`
	FileName string         `json:"filename"`
	MD5      string         `json:"md5,omitempty"`
	Local    *LocalResult   `json:"local,omitempty"`
	Uploads  []UploadResult `json:"uploads"`
}

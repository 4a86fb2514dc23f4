package transload

import (
	"net/url"
	"path"
	"regexp"
	"unicode/utf8"
)

// contentDispositionFileName matches the spec's filename extraction regex
// (spec §6), case-insensitively, against a Content-Disposition header
// value.
var contentDispositionFileName = regexp.MustCompile(`(?i)filename\*?=(?:UTF-8|ISO-8859-2)?(['"])?([^'";\n]+)['"]?`)

// deriveFileName extracts a filename from a Content-Disposition header
// value, falling back to the download URL's path basename. The captured
// group is run through the legacy decodeURIComponent(escape(x)) pipeline
// (percent-decode, then reinterpret the resulting Latin-1 code units as
// UTF-8 bytes) to match the reference implementation's observable output
// exactly — this is deliberately not RFC 5987 parsing (spec §9).
func deriveFileName(contentDisposition string, downloadURL string) string {
	if m := contentDispositionFileName.FindStringSubmatch(contentDisposition); m != nil {
		if name := legacyDecode(m[2]); name != "" {
			return name
		}
	}

	if u, err := url.Parse(downloadURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}

	return ""
}

// legacyDecode reproduces JavaScript's decodeURIComponent(escape(x)) as
// applied to a percent-encoded header parameter: percent-decoding a %XX
// sequence yields the raw byte XX directly, and since a Go string is
// already a byte sequence, that raw byte sequence *is* the reinterpreted
// Latin-1-code-units-as-UTF-8-bytes result decodeURIComponent would
// produce in JS — no further transcoding step is needed on this side.
func legacyDecode(s string) string {
	percentDecoded, err := url.PathUnescape(s)
	if err != nil {
		// Not valid percent-encoding; treat verbatim.
		percentDecoded = s
	}
	if !utf8.ValidString(percentDecoded) {
		return s
	}
	return percentDecoded
}

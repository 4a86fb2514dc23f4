package transload

import (
	"bytes"
	"io"
	"mime/multipart"
)

// multipartEncoder is the contracted interface for the multipart body
// builder (spec §1: "multipart encoder... treated as a contracted
// interface"). The core coordinator never depends on the concrete encoding;
// it only needs a reader, its total length, and the content-type header to
// send with it.
type multipartEncoder interface {
	// Encode wraps content (exactly contentLength bytes, once fully read)
	// as a single-part "file" upload, returning the full request body, its
	// total length, and the Content-Type header value.
	Encode(fileName string, content io.Reader, contentLength int64) (body io.Reader, totalLength int64, contentType string)
}

// stdMultipartEncoder builds the multipart/form-data body with
// mime/multipart, precomputing the part preamble and closing boundary so
// the total Content-Length can be declared up front instead of chunking
// the request.
type stdMultipartEncoder struct{}

func (stdMultipartEncoder) Encode(fileName string, content io.Reader, contentLength int64) (io.Reader, int64, string) {
	var preamble bytes.Buffer
	w := multipart.NewWriter(&preamble)
	// CreateFormFile writes the boundary + part headers to preamble and
	// returns a writer for the part body, which we never use: the part
	// body is streamed separately below so we can measure its length.
	_, _ = w.CreateFormFile("file", fileName)

	var trailer bytes.Buffer
	tw := multipart.NewWriter(&trailer)
	_ = tw.SetBoundary(w.Boundary())
	_ = tw.Close()

	total := int64(preamble.Len()) + contentLength + int64(trailer.Len())
	body := io.MultiReader(bytes.NewReader(preamble.Bytes()), content, bytes.NewReader(trailer.Bytes()))

	return body, total, w.FormDataContentType()
}

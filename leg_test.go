package transload

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLeg(config UploadConfig, calculateMD5 bool) *Leg {
	return NewLeg(0, config, http.DefaultClient, calculateMD5, nil, silentLogger{})
}

func TestLegStartsInPreparingAndActivatesOnSetSize(t *testing.T) {
	l := newTestLeg(UploadConfig{UploadURL: "http://unused"}, false)
	assert.Equal(t, StatePreparing, l.state_())

	l.SetSize(100)
	assert.Equal(t, StateActive, l.state_())
	assert.True(t, l.IsAlive())
}

func TestLegWriteRejectsBeforeActive(t *testing.T) {
	l := newTestLeg(UploadConfig{UploadURL: "http://unused"}, false)
	accepted := l.Write([]byte("too early"))
	assert.False(t, accepted)
	assert.Equal(t, uint64(0), l.uploadedBytes)
}

func TestLegWriteTracksBytesAndHash(t *testing.T) {
	l := newTestLeg(UploadConfig{UploadURL: "http://unused"}, true)
	l.SetSize(11)
	assert.True(t, l.Write([]byte("hello ")))
	assert.True(t, l.Write([]byte("world")))
	assert.Equal(t, uint64(11), l.uploadedBytes)

	l.Finalize()
	sum := md5.Sum([]byte("hello world")) //nolint:gosec
	assert.Equal(t, hex.EncodeToString(sum[:]), l.md5)
}

func TestLegWriteOverflowEntersStalledThenOnDrainReturnsToActive(t *testing.T) {
	l := newTestLeg(UploadConfig{UploadURL: "http://unused"}, false)
	l.SetSize(uint64(BufferCap + 1))

	accepted := l.Write(make([]byte, BufferCap+1))
	assert.False(t, accepted)
	assert.Equal(t, StateStalled, l.state_())

	buf := make([]byte, BufferCap+1)
	_, err := io.ReadFull(l.buffer, buf)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for l.state_() != StateActive && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, StateActive, l.state_())
}

func TestLegFinalizeAppendsRandomSuffixAndAltersHash(t *testing.T) {
	plain := newTestLeg(UploadConfig{UploadURL: "http://unused"}, true)
	plain.SetSize(5)
	plain.Write([]byte("hello"))
	plain.Finalize()

	suffixed := newTestLeg(UploadConfig{UploadURL: "http://unused", RandomBytesCount: 12}, true)
	suffixed.SetSize(5)
	suffixed.Write([]byte("hello"))
	suffixed.Finalize()

	assert.Equal(t, uint64(5), plain.uploadedBytes)
	assert.Equal(t, uint64(17), suffixed.uploadedBytes)
	assert.NotEqual(t, plain.md5, suffixed.md5)
}

func TestLegAbortIsIdempotentAndSettlesOnce(t *testing.T) {
	l := newTestLeg(UploadConfig{UploadURL: "http://unused"}, false)
	l.SetSize(5)
	l.Write([]byte("hello"))

	l.Abort(assertErr("boom"))
	r1 := l.settleError(assertErr("second boom"))
	assert.Equal(t, "boom", r1.Error)
	assert.False(t, l.IsAlive())
}

func TestLegRunPUTUploadsRawBodyAndParsesTextResponse(t *testing.T) {
	var receivedBody []byte
	var receivedLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedLength = r.ContentLength
		body, _ := io.ReadAll(r.Body)
		receivedBody = body
		_, _ = w.Write([]byte("http://sink.example/blob"))
	}))
	defer srv.Close()

	l := newTestLeg(UploadConfig{UploadURL: srv.URL, Method: http.MethodPut}, true)
	l.SetSize(11)
	l.Write([]byte("hello world"))
	l.Finalize()

	res := l.Run()

	assert.Empty(t, res.Error)
	assert.Equal(t, uint64(11), res.UploadedBytes)
	assert.Equal(t, uint64(11), res.Size)
	assert.Equal(t, "http://sink.example/blob", res.Response)
	assert.Equal(t, "hello world", string(receivedBody))
	assert.Equal(t, int64(11), receivedLength)
}

func TestLegRunPOSTUploadsMultipartAndParsesJSONResponse(t *testing.T) {
	var receivedFileName string
	var receivedContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		receivedFileName = header.Filename
		b, err := io.ReadAll(file)
		require.NoError(t, err)
		receivedContent = string(b)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"id":42}`))
	}))
	defer srv.Close()

	l := newTestLeg(UploadConfig{UploadURL: srv.URL, FileName: "payload.bin"}, false)
	l.SetSize(5)
	l.Write([]byte("abcde"))
	l.Finalize()

	res := l.Run()

	assert.Empty(t, res.Error)
	assert.Equal(t, "payload.bin", receivedFileName)
	assert.Equal(t, "abcde", receivedContent)

	parsed, ok := res.Response.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, parsed["ok"])
	assert.Equal(t, float64(42), parsed["id"])
}

func TestLegRunSettlesErrorOnConnectionFailure(t *testing.T) {
	l := newTestLeg(UploadConfig{UploadURL: "http://127.0.0.1:0"}, false)
	l.SetSize(3)
	l.Write([]byte("abc"))
	l.Finalize()

	res := l.Run()
	assert.NotEmpty(t, res.Error)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

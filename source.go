package transload

import (
	"context"
	"crypto/md5" //nolint:gosec // content hash, not a security boundary
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
)

// sourceChunkSize is the read buffer size for pumping the source response
// body; it is the unit of a single Coordinator.Broadcast call.
const sourceChunkSize = 32 * 1024

// SourceReader opens the download, extracts its length and filename, and
// pumps its body into the Coordinator and an optional local writer,
// pausing on backpressure signals (spec §2 C3, §4.3).
type SourceReader struct {
	downloadURL string
	client      *http.Client
	logger      log.Logger
	coordinator *Coordinator
	localWriter *localWriter

	hash            hash.Hash
	bytesDownloaded atomic.Uint64
	contentLength   atomic.Uint64
	fileName        atomic.Value // string

	pauseMu  sync.Mutex
	paused   bool
	resumeCh chan struct{}
	unusable atomic.Bool
	cancel   context.CancelFunc
}

// NewSourceReader wires a reader for downloadURL against coordinator,
// optionally computing a session-level MD5 and mirroring bytes to lw.
func NewSourceReader(downloadURL string, agent *http.Client, calculateMD5 bool, coordinator *Coordinator, lw *localWriter, logger log.Logger) *SourceReader {
	retryableClient := retryhttp.NewClient(logger)
	client := agent
	if client == nil {
		client = retryableClient.StandardClient()
	}

	s := &SourceReader{
		downloadURL: downloadURL,
		client:      client,
		logger:      logger,
		coordinator: coordinator,
		localWriter: lw,
		resumeCh:    make(chan struct{}, 1),
	}
	s.fileName.Store("")
	if calculateMD5 {
		s.hash = md5.New() //nolint:gosec
	}

	coordinator.Subscribe(s.onStuck, s.onUnstuck, s.onUnusable)

	return s
}

// BytesDownloaded returns the running total, safe for concurrent reads
// from a progress logger (spec §5: tolerates racy reads).
func (s *SourceReader) BytesDownloaded() uint64 { return s.bytesDownloaded.Load() }

// ContentLength returns the source's declared length, or 0 if unknown.
func (s *SourceReader) ContentLength() uint64 { return s.contentLength.Load() }

// FileName returns the derived filename, once known.
func (s *SourceReader) FileName() string { return s.fileName.Load().(string) }

// MD5 returns the hex digest of the session-level hash, if it completed
// (empty otherwise, e.g. disabled or the source aborted mid-stream).
func (s *SourceReader) MD5() string {
	if s.hash == nil {
		return ""
	}
	return hex.EncodeToString(s.hash.Sum(nil))
}

func (s *SourceReader) onStuck(idx uint) {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
	s.logger.Debugf("leg %d stuck, pausing source", idx)
}

func (s *SourceReader) onUnstuck(idx uint) {
	s.pauseMu.Lock()
	s.paused = false
	s.pauseMu.Unlock()
	select {
	case s.resumeCh <- struct{}{}:
	default:
	}
	s.logger.Debugf("leg %d unstuck, resuming source", idx)
}

func (s *SourceReader) onUnusable() {
	s.unusable.Store(true)
	if s.localWriter == nil {
		s.logger.Warnf("all legs dead, no local save configured, cancelling source")
		if s.cancel != nil {
			s.cancel()
		}
	} else {
		s.logger.Warnf("all legs dead, local save configured, continuing to drain to disk")
	}
	select {
	case s.resumeCh <- struct{}{}:
	default:
	}
}

// Run performs the source GET, pumps its body, and settles the Coordinator
// and local writer. Returns ErrSourceOpenFailed if no body was ever
// obtained; any other error is a mid-stream failure already reported to
// every Leg via abortAll before Run returns it.
func (s *SourceReader) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.downloadURL, nil)
	if err != nil {
		openErr := &ErrSourceOpenFailed{URL: s.downloadURL, Err: err}
		s.coordinator.AbortAll(openErr)
		return openErr
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		openErr := &ErrSourceOpenFailed{URL: s.downloadURL, Err: err}
		s.coordinator.AbortAll(openErr)
		return openErr
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.ContentLength > 0 {
		s.contentLength.Store(uint64(resp.ContentLength))
	}
	s.coordinator.SetSize(uint64(resp.ContentLength))

	name := deriveFileName(resp.Header.Get("Content-Disposition"), s.downloadURL)
	s.fileName.Store(name)
	s.coordinator.SetFilename(name)

	if err := s.pump(ctx, resp.Body); err != nil {
		s.coordinator.AbortAll(fmt.Errorf("source stream aborted: %w", err))
		// the session digest covers only a completed stream
		s.hash = nil
		if s.localWriter != nil {
			s.localWriter.Abort()
		}
		return fmt.Errorf("source stream: %w", err)
	}

	s.coordinator.FinalizeAll()
	if s.localWriter != nil {
		s.localWriter.Close()
	}
	return nil
}

func (s *SourceReader) pump(ctx context.Context, body io.Reader) error {
	buf := make([]byte, sourceChunkSize)
	for {
		if err := s.awaitResumed(ctx); err != nil {
			return err
		}

		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			s.bytesDownloaded.Add(uint64(n))
			if s.hash != nil {
				s.hash.Write(chunk) //nolint:errcheck
			}
			s.coordinator.Broadcast(chunk)
			if s.localWriter != nil {
				if werr := s.localWriter.Write(chunk); werr != nil {
					s.logger.Warnf("local writer: %v", werr)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// awaitResumed blocks while a live Leg is Stalled, unless every Leg has
// gone unusable and a local save is configured (spec §4.2/§4.3: producer
// resumes if no Leg is currently Stalled or the session tolerates
// continuing without live Legs).
func (s *SourceReader) awaitResumed(ctx context.Context) error {
	for {
		// Only this goroutine moves a leg into Stalled (via Broadcast), and
		// every move out of it signals resumeCh, so the scan cannot miss one.
		paused := false
		for _, l := range s.coordinator.Legs() {
			if l.state_() == StateStalled {
				paused = true
				break
			}
		}

		if s.unusable.Load() && s.localWriter == nil {
			return context.Canceled
		}
		if !paused || s.unusable.Load() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.resumeCh:
		}
	}
}

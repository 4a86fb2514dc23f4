package transload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-transload/internal/localfs"
	"github.com/bitrise-io/go-transload/internal/redact"
	"github.com/bitrise-io/go-transload/internal/sessiontracker"
)

// progressInterval is how often the session logs download progress while
// the source is being read (spec §4.4 step 3); the percentage is included
// only when the content length is known.
const progressInterval = 5 * time.Second

// Session is the public entry point (spec §2 C4). Construct one with New
// and call Transload once; a Session is not reusable.
type Session struct {
	downloadURL string
	config      SessionConfig
	logger      log.Logger

	coordinator *Coordinator
	source      *SourceReader
	localWriter *localWriter
	tracker     sessiontracker.Tracker
	sessionID   string
}

// New constructs one Leg per UploadConfig and the Coordinator that fans
// out to them. The only I/O before Transload is creating (truncating) the
// local save file when SaveToLocalPath is set.
func New(downloadURL string, uploads []UploadConfig, config *SessionConfig) *Session {
	cfg := SessionConfig{}
	if config != nil {
		cfg = *config
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	extraSecretHeaderNames := redact.NamesFromEnv(cfg.EnvRepository)

	legs := make([]*Leg, len(uploads))
	for i, u := range uploads {
		legs[i] = NewLeg(uint(i), u, cfg.Agent, cfg.CalculateMD5, extraSecretHeaderNames, logger)
	}
	coordinator := NewCoordinator(legs, logger)

	var lw *localWriter
	if cfg.SaveToLocalPath != "" {
		w, err := newLocalWriter(localfs.Real{}, cfg.SaveToLocalPath)
		if err != nil {
			logger.Warnf("could not open local save path %s: %v", cfg.SaveToLocalPath, err)
		} else {
			lw = w
		}
	}

	sessionID := uuid.NewString()
	source := NewSourceReader(downloadURL, cfg.Agent, cfg.CalculateMD5, coordinator, lw, logger)

	return &Session{
		downloadURL: downloadURL,
		config:      cfg,
		logger:      logger,
		coordinator: coordinator,
		source:      source,
		localWriter: lw,
		tracker:     sessiontracker.New(logger, sessionID),
		sessionID:   sessionID,
	}
}

// Transload runs the source download and all upload legs concurrently and
// returns the aggregate result once every leg, the source, and any local
// write have settled (spec §4.4 run()). The only error it returns is
// ErrSourceOpenFailed; every other failure is recorded per-leg.
func (s *Session) Transload() (*TransloadResult, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.logger.Infof("transload %s: starting session %s with %d leg(s)", s.downloadURL, s.sessionID, len(s.coordinator.Legs()))

	var wg sync.WaitGroup
	legResults := make([]UploadResult, len(s.coordinator.Legs()))
	for _, l := range s.coordinator.Legs() {
		wg.Add(1)
		go func(l *Leg) {
			defer wg.Done()
			legStart := time.Now()
			res := l.Run()
			legResults[l.Index()] = res
			if res.Error != "" {
				s.coordinator.LegRejected(l.Index(), errors.New(res.Error))
				s.tracker.LegFailed(l.Index(), res.Error, res.UploadedBytes)
			} else {
				s.tracker.LegSucceeded(l.Index(), res.UploadedBytes, time.Since(legStart))
			}
		}(l)
	}

	stopProgress := s.startProgressLogger()
	sourceErr := s.source.Run(ctx)
	stopProgress()

	wg.Wait()
	s.tracker.Wait()

	if openErr, ok := sourceErr.(*ErrSourceOpenFailed); ok {
		return nil, openErr
	}

	failed := 0
	for _, r := range legResults {
		if r.Error != "" {
			failed++
		}
	}
	s.tracker.SessionCompleted(s.source.BytesDownloaded(), len(legResults), failed, time.Since(start))

	return assembleResult(s.downloadURL, s.source, s.localWriter, legResults), nil
}

func (s *Session) startProgressLogger() (stop func()) {
	done := make(chan struct{})
	ticker := time.NewTicker(progressInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				total := s.source.ContentLength()
				downloaded := s.source.BytesDownloaded()
				if total > 0 {
					s.logger.Printf("downloaded %s / %s (%.1f%%)",
						units.HumanSizeWithPrecision(float64(downloaded), 3),
						units.HumanSizeWithPrecision(float64(total), 3),
						float64(downloaded)/float64(total)*100)
				} else {
					s.logger.Printf("downloaded %s", units.HumanSizeWithPrecision(float64(downloaded), 3))
				}
			}
		}
	}()
	return func() { close(done) }
}

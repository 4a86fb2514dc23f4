package transload

import "fmt"

// ErrSourceOpenFailed is returned by Transload when the initial source GET
// never yields a body (DNS failure, connection refused, ...). It is the
// sole fatal path out of Transload (spec §7 category 1); every other
// failure is recorded per-leg instead of being thrown.
type ErrSourceOpenFailed struct {
	URL string
	Err error
}

func (e *ErrSourceOpenFailed) Error() string {
	return fmt.Sprintf("open source %s: %v", e.URL, e.Err)
}

func (e *ErrSourceOpenFailed) Unwrap() error { return e.Err }

// legPhase names the stage a leg error occurred in, for logging/analytics.
type legPhase string

const (
	legPhaseHTTP        legPhase = "http"
	legPhaseIdleTimeout legPhase = "idle-timeout"
	legPhaseSourceAbort legPhase = "source-abort"
)

// legError wraps a per-leg failure with the phase it occurred in (spec §7
// categories 3/4). It is recorded on UploadResult.Error as a string, never
// thrown.
type legError struct {
	index uint
	phase legPhase
	err   error
}

func (e *legError) Error() string {
	return fmt.Sprintf("leg %d (%s): %v", e.index, e.phase, e.err)
}

func (e *legError) Unwrap() error { return e.err }

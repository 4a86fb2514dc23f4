package transload

import "github.com/bitrise-io/go-utils/v2/log"

// silentLogger is a no-op log.Logger for tests that don't assert on log
// output.
type silentLogger struct{}

func (silentLogger) Debugf(format string, v ...interface{})  {}
func (silentLogger) Infof(format string, v ...interface{})   {}
func (silentLogger) Warnf(format string, v ...interface{})   {}
func (silentLogger) Errorf(format string, v ...interface{})  {}
func (silentLogger) Printf(format string, v ...interface{})  {}
func (silentLogger) Println()                                {}
func (silentLogger) Donef(format string, v ...interface{})   {}
func (silentLogger) TDebugf(format string, v ...interface{}) {}
func (silentLogger) TInfof(format string, v ...interface{})  {}
func (silentLogger) TWarnf(format string, v ...interface{})  {}
func (silentLogger) TPrintf(format string, v ...interface{}) {}
func (silentLogger) TDonef(format string, v ...interface{})  {}
func (silentLogger) TErrorf(format string, v ...interface{}) {}
func (silentLogger) EnableDebugLog(enable bool)              {}

var _ log.Logger = silentLogger{}

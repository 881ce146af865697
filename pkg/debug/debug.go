// Package debug holds the per-frame trace switch
package debug

import "fmt"

// Frames controls whether a trace line is printed for every decided frame.
// Use --debug-frames to enable; at camera rate this is very verbose.
var Frames bool

// FrameLog prints a message only if frame tracing is enabled
func FrameLog(format string, args ...interface{}) {
	if Frames {
		fmt.Printf(format, args...)
	}
}

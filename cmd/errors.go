package cmd

import (
	"errors"
	"fmt"
)

// ScanFailedError reports a scan that ended in the failed state.
type ScanFailedError struct {
	ID     string
	Reason string
}

func (e *ScanFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("scan %s failed", e.ID)
	}
	return fmt.Sprintf("scan %s failed: %s", e.ID, e.Reason)
}

// ArchiveDisabledError signals a command that needs the archive while
// archiving is turned off.
type ArchiveDisabledError struct{}

func (e *ArchiveDisabledError) Error() string {
	return "scan archive is disabled (set archive.enabled=true)"
}

// exitCode maps command errors onto process exit codes.
func exitCode(err error) int {
	var failed *ScanFailedError
	if errors.As(err, &failed) {
		return 2
	}
	return 1
}

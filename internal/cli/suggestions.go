package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ctenopoma/issuer/pkg/color"
	"github.com/ctenopoma/issuer/pkg/errclass"
)

// suggestFor returns a hint for well-known error classes, or "".
func suggestFor(err error) string {
	switch {
	case errors.Is(err, errclass.ErrConfigInvalid):
		return fmt.Sprintf("Run %s to write a default config, or check %s.",
			color.Highlight("issuer config init"), color.Highlight("issuer config show"))
	case errors.Is(err, errclass.ErrLockHeld):
		return fmt.Sprintf("Run %s to see who holds the lock.", color.Highlight("issuer lock status"))
	case errors.Is(err, errclass.ErrLockWrite):
		return "Check that the shared folder is reachable and writable."
	case errors.Is(err, errclass.ErrReplicaBusy):
		return "Another issuer session on this machine is using the local cache. Close it or set a different --local-dir."
	case errors.Is(err, errclass.ErrSyncBackFailed):
		return fmt.Sprintf("Your edits are still in the local cache. Run %s before starting another session.",
			color.Highlight("issuer doctor"))
	}
	return ""
}

// formatError renders err with an optional hint line.
func formatError(err error) string {
	var sb strings.Builder
	sb.WriteString(color.Error("issuer: " + err.Error()))
	if hint := suggestFor(err); hint != "" {
		sb.WriteString("\n")
		sb.WriteString(color.Dim("  " + hint))
	}
	return sb.String()
}

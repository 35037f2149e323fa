// Package importer implements the import orchestrator (C7): it decodes a
// scene/backup file and pushes every parameter back to the live console.
package importer

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gravwell/x32mgr/internal/errs"
	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/scenefile"
)

// Sender is the fire-and-forget send surface (C2); no reply is awaited
// for set-commands.
type Sender interface {
	Send(address string, args []osc.Arg) error
}

// Requester is the blocking request surface (C3), used only for the
// post-import liveness probe.
type Requester interface {
	Request(ctx context.Context, address string, args []osc.Arg, timeout time.Duration) ([]osc.Arg, error)
}

// Policy carries the import-side pacing knobs.
type Policy struct {
	InterSendGap     time.Duration
	LiveConsoleProbe time.Duration
}

// DefaultPolicy returns the importer's default pacing/probe knobs.
func DefaultPolicy() Policy {
	return Policy{InterSendGap: 5 * time.Millisecond, LiveConsoleProbe: 2 * time.Second}
}

// ProgressFunc mirrors the export side's shape: (completed, total, section).
type ProgressFunc func(completed, total int, label string)

// Summary mirrors the export side; ErrorCount reflects transport errors
// only, since writes are unacknowledged.
type Summary struct {
	ParameterCount int
	Duration       time.Duration
	ErrorCount     int
}

// majorVersion returns the part of a firmware string before its first
// dot; the file's and the live console's are compared, and a mismatch is
// a non-fatal warning.
func majorVersion(firmware string) string {
	parts := strings.SplitN(firmware, ".", 2)
	return parts[0]
}

// Import decodes data via C5 and replays every record against send,
// pacing by policy.InterSendGap and reporting progress at the same
// (completed, total, section) shape as export. liveFirmware is the live
// console's current firmware string (from a prior /xinfo), used only for
// the non-fatal version-compatibility check; pass "" to skip it.
func Import(ctx context.Context, send Sender, req Requester, bus *eventbus.Bus, data []byte, liveFirmware string, policy Policy, progress ProgressFunc) (Summary, error) {
	start := time.Now()

	header, records, err := scenefile.Read(data)
	if err != nil {
		return Summary{}, err
	}

	if liveFirmware != "" && majorVersion(header.Firmware) != majorVersion(liveFirmware) {
		if bus != nil {
			bus.Publish(eventbus.Event{Kind: eventbus.Error, Payload: "firmware major version mismatch: file " + header.Firmware + " vs console " + liveFirmware})
		}
	}

	var limiter *rate.Limiter
	if policy.InterSendGap > 0 {
		limiter = rate.NewLimiter(rate.Every(policy.InterSendGap), 1)
	}

	errorCount := 0
	for i, r := range records {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return Summary{}, errs.New("importer.Import", errs.Canceled, err)
			}
		}
		if ctx.Err() != nil {
			return Summary{}, errs.New("importer.Import", errs.Canceled, ctx.Err())
		}
		if err := send.Send(r.Address, r.Args); err != nil {
			errorCount++
		}
		if progress != nil {
			progress(i+1, len(records), sectionLabel(r.Address))
		}
	}

	if req != nil {
		probeCtx, cancel := context.WithTimeout(ctx, policy.LiveConsoleProbe)
		_, probeErr := req.Request(probeCtx, "/xinfo", nil, policy.LiveConsoleProbe)
		cancel()
		if probeErr != nil {
			return Summary{ParameterCount: len(records), Duration: time.Since(start), ErrorCount: errorCount},
				errs.New("importer.Import", errs.LoadUncertain, probeErr)
		}
	}

	return Summary{ParameterCount: len(records), Duration: time.Since(start), ErrorCount: errorCount}, nil
}

// sectionLabel derives a coarse progress label from an address's leading
// path component, good enough for the UI's progress display without
// threading the manifest's section metadata through the file format.
func sectionLabel(address string) string {
	parts := strings.SplitN(strings.TrimPrefix(address, "/"), "/", 2)
	if len(parts) == 0 {
		return "unknown"
	}
	return parts[0]
}

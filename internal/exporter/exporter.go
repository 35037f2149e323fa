// Package exporter implements the export orchestrator (C6): it walks a
// parameter manifest through the bulk query engine and serializes the
// result via the scene file codec.
package exporter

import (
	"context"
	"time"

	"github.com/gravwell/x32mgr/internal/bulk"
	"github.com/gravwell/x32mgr/internal/errs"
	"github.com/gravwell/x32mgr/internal/manifest"
	"github.com/gravwell/x32mgr/internal/scenefile"
)

// Identity is the console's answer to /xinfo, used to stamp the file
// header's firmware field.
type Identity struct {
	IP       string
	Name     string
	Model    string
	Firmware string
}

// Requester is the subset of the correlator the orchestrator needs for
// both the identity probe and (via bulk.Sweep) the manifest walk.
type Requester interface {
	bulk.Requester
}

// ProgressFunc mirrors bulk.ProgressFunc: (completed, total, section-label).
type ProgressFunc func(completed, total int, label string)

// Summary is returned alongside the serialized bytes.
type Summary struct {
	ParameterCount int
	Duration       time.Duration
	ErrorCount     int
}

const identityTimeout = 2 * time.Second

// identify issues the /xinfo probe and parses the four-string reply.
func identify(ctx context.Context, req Requester) (Identity, error) {
	args, err := req.Request(ctx, "/xinfo", nil, identityTimeout)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{}
	if len(args) > 0 {
		id.IP = args[0].S
	}
	if len(args) > 1 {
		id.Name = args[1].S
	}
	if len(args) > 2 {
		id.Model = args[2].S
	}
	if len(args) > 3 {
		id.Firmware = args[3].S
	}
	return id, nil
}

// ExportScene produces a .scn file for the scene-level manifest.
func ExportScene(ctx context.Context, req Requester, name, notes string, policy bulk.Policy, progress ProgressFunc) ([]byte, Summary, error) {
	return export(ctx, req, manifest.SceneManifest(), name, notes, policy, progress)
}

// ExportConsoleBackup produces a .bak file for the full console manifest.
func ExportConsoleBackup(ctx context.Context, req Requester, name, notes string, policy bulk.Policy, progress ProgressFunc) ([]byte, Summary, error) {
	return export(ctx, req, manifest.BackupManifest(), name, notes, policy, progress)
}

func export(ctx context.Context, req Requester, sections []manifest.Section, name, notes string, policy bulk.Policy, progress ProgressFunc) ([]byte, Summary, error) {
	start := time.Now()

	id, err := identify(ctx, req)
	if err != nil {
		return nil, Summary{}, errs.New("exporter.export", errs.SessionLost, err)
	}

	addrs, labels := manifest.Flatten(sections)
	queries := make([]bulk.Query, len(addrs))
	for i := range addrs {
		queries[i] = bulk.Query{Address: addrs[i], Label: labels[i]}
	}

	var bulkProgress bulk.ProgressFunc
	if progress != nil {
		bulkProgress = func(completed, total int, label string) { progress(completed, total, label) }
	}

	results, sweepErr := bulk.Sweep(ctx, req, queries, policy, bulkProgress)
	if sweepErr != nil && errs.KindOf(sweepErr) == errs.TransportError {
		return nil, Summary{}, errs.New("exporter.export", errs.SessionLost, sweepErr)
	}

	records := make([]scenefile.Record, 0, len(results))
	errorCount := 0
	for _, r := range results {
		if errs.KindOf(r.Err) == errs.Canceled {
			// canceled in flight or never dispatched once the sweep
			// aborted; excluded entirely rather than written as a line.
			continue
		}
		// a per-address TIMEOUT that survived retries is recorded as a
		// zero/empty-valued line; the console retains its prior value
		// for that parameter on re-import.
		records = append(records, scenefile.Record{Address: r.Address, Args: r.Args})
		if r.Err != nil {
			errorCount++
		}
	}

	var prec scenefile.Precision = manifest.Precision{}
	h := scenefile.Header{Firmware: id.Firmware, Name: name, Notes: notes}
	buf, err := scenefile.Write(h, records, prec)
	if err != nil {
		return nil, Summary{}, err
	}

	summary := Summary{
		ParameterCount: len(records),
		Duration:       time.Since(start),
		ErrorCount:     errorCount,
	}
	if sweepErr != nil {
		return buf, summary, sweepErr
	}
	return buf, summary, nil
}

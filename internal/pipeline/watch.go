package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"budman/internal/store"
	"budman/pkg/errors"
	"budman/pkg/logger"
)

// DefaultSettle is how long a raw export must go without writes before the
// watcher considers it complete. Bank downloads and network copies arrive in
// bursts, so reacting to the first write would read half a file.
const DefaultSettle = 2 * time.Second

// WatchOptions configures a watch run
type WatchOptions struct {
	// FI restricts the watch to one institution; empty watches all
	FI string
	// Settle overrides DefaultSettle; values under a millisecond fall
	// back to the default
	Settle time.Duration
	// Categorize runs categorization after each triggered intake
	Categorize bool
	// OnRun is called after each triggered pipeline run, mainly for tests
	// and for the CLI to print per-run summaries
	OnRun func(results []*IntakeResult, err error)
}

// settleWindow clamps unusable settle values to the default. The poll
// ticker runs at half the window, so anything below a millisecond is
// treated as unset rather than handed to time.NewTicker.
func settleWindow(d time.Duration) time.Duration {
	if d < time.Millisecond {
		return DefaultSettle
	}
	return d
}

// Watch monitors the raw folders of the selected institutions and runs
// intake whenever a new export settles. It blocks until the context is
// cancelled.
func (p *Pipeline) Watch(ctx context.Context, opts WatchOptions) error {
	fis, err := p.institutions(opts.FI)
	if err != nil {
		return err
	}

	settle := settleWindow(opts.Settle)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "watch", err)
	}
	defer watcher.Close()

	// map watched raw folders back to their institution keys
	rawOwners := make(map[string]string)
	for _, fi := range fis {
		dir := p.store.StageFolder(fi, store.FolderRaw)
		if err := watcher.Add(dir); err != nil {
			return errors.FileError(errors.CodeDirectoryError, dir, err)
		}
		rawOwners[filepath.Clean(dir)] = fi.Key
		p.logger.WithFields(logger.Fields{"fi": fi.Key, "dir": dir}).Info("Watching raw folder")
	}

	// pending institutions with unsettled writes, keyed by fi
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !isExport(event.Name) {
				continue
			}
			fiKey, known := rawOwners[filepath.Clean(filepath.Dir(event.Name))]
			if !known {
				continue
			}
			pending[fiKey] = time.Now()
			p.logger.WithFields(logger.Fields{
				"fi":   fiKey,
				"file": filepath.Base(event.Name),
				"op":   event.Op.String(),
			}).Debug("Raw folder changed")

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.WithError(werr).Warn("Watcher error")

		case now := <-ticker.C:
			for fiKey, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, fiKey)
				p.runTriggered(ctx, fiKey, opts)
			}
		}
	}
}

// runTriggered executes one watch-triggered pipeline run for an institution
func (p *Pipeline) runTriggered(ctx context.Context, fiKey string, opts WatchOptions) {
	results, err := p.Intake(ctx, fiKey)
	if err == nil && opts.Categorize {
		_, err = p.Categorize(ctx, fiKey)
	}
	if err != nil {
		p.logger.WithError(err).WithField("fi", fiKey).Error("Triggered run failed")
	}
	if opts.OnRun != nil {
		opts.OnRun(results, err)
	}
}

func isExport(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

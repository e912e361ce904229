package tactile

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"ddaharness/internal/logging"
	"ddaharness/internal/variants"
)

// artifactWatcher records files written into the output directory whose names
// start with the run's output stem.
type artifactWatcher struct {
	w      *fsnotify.Watcher
	prefix string

	mu   sync.Mutex
	seen map[string]struct{}
	done chan struct{}
}

// watchArtifacts watches dir for files named after outputBase (with or without its extension).
func watchArtifacts(dir, outputBase string) (*artifactWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	aw := &artifactWatcher{
		w:      w,
		prefix: variants.StripExt(outputBase),
		seen:   make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	go aw.loop()
	return aw, nil
}

func (aw *artifactWatcher) loop() {
	defer close(aw.done)
	for {
		select {
		case event, ok := <-aw.w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasPrefix(filepath.Base(event.Name), aw.prefix) {
				continue
			}
			aw.mu.Lock()
			if _, dup := aw.seen[event.Name]; !dup {
				logging.TactileDebug("Observed output artifact %s", event.Name)
			}
			aw.seen[event.Name] = struct{}{}
			aw.mu.Unlock()
		case err, ok := <-aw.w.Errors:
			if !ok {
				return
			}
			logging.TactileDebug("Artifact watcher error: %v", err)
		}
	}
}

// Stop closes the watcher and returns the observed paths, sorted.
func (aw *artifactWatcher) Stop() []string {
	aw.w.Close()
	<-aw.done

	aw.mu.Lock()
	defer aw.mu.Unlock()
	out := make([]string, 0, len(aw.seen))
	for name := range aw.seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

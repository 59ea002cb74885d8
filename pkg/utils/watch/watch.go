// Package watch notifies about changes of a single file.
package watch

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/selfdriving-car-go/log"
)

type Option func(*watcher)

type watcher struct {
	ctx      context.Context
	file     string
	onChange func()
	log      *log.Logger
}

func WithLogger(l *log.Logger) Option {
	return func(w *watcher) {
		w.log = l
	}
}

// File calls onChange whenever file is written or replaced.
// The parent directory is watched, so replacing the file by rename is
// detected as well. Watching ends when ctx is done.
func File(ctx context.Context, file string, onChange func(), opts ...Option) error {
	w := &watcher{
		ctx:      ctx,
		file:     filepath.Clean(file),
		onChange: onChange,
		log:      log.GetFromContext(ctx).Named("watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.file)); err != nil {
		fsw.Close()
		return err
	}
	go w.loop(fsw)
	return nil
}

func (w *watcher) loop(fsw *fsnotify.Watcher) {
	defer fsw.Close()
	for {
		select {
		case <-w.ctx.Done():
			w.log.Debug("context done, stopping watch", log.String("file", w.file))
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			w.log.Debug("change detected",
				log.String("file", event.Name), log.Stringer("op", event.Op))
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.onChange()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", log.ErrorField(err))
		}
	}
}

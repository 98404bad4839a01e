package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher reloads the store when the config file changes. Uses
// fsnotify, with a slow mtime poll as fallback when the watch cannot be
// established (file on NFS, file created after startup).
func (s *Store) StartWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("config watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else {
		if err := watcher.Add(s.path); err != nil {
			log.Printf("config watcher: cannot watch %s (%v), falling back to polling", s.path, err)
			usePolling = true
			watcher.Close()
		}
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// Editors often write in two syscalls; debounce.
						time.Sleep(100 * time.Millisecond)
						if err := s.Reload(); err != nil {
							log.Printf("config watcher: reload failed, keeping previous config: %v", err)
						} else {
							log.Println("config watcher: reloaded")
						}
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("config watcher: %v", err)
				}
			}
		}()
		return
	}

	go s.poll(ctx, 60*time.Second)
}

// poll reloads when the file mtime moves forward.
func (s *Store) poll(ctx context.Context, every time.Duration) {
	var lastMod time.Time
	if fi, err := os.Stat(s.path); err == nil {
		lastMod = fi.ModTime()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fi, err := os.Stat(s.path)
			if err != nil || !fi.ModTime().After(lastMod) {
				continue
			}
			lastMod = fi.ModTime()
			if err := s.Reload(); err != nil {
				log.Printf("config watcher: reload failed, keeping previous config: %v", err)
			} else {
				log.Println("config watcher: reloaded")
			}
		}
	}
}

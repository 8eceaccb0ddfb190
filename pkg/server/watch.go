package server

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConf reloads the config file whenever it changes on disk and hands
// the new, validated config to apply. Invalid edits are logged and ignored.
// Watches the parent directory, so a file replaced on save is still seen.
func WatchConf(ctx context.Context, path string, apply func(*GameConf)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(path), err)
	}
	name := filepath.Base(path)

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
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Base(event.Name) != name {
					continue
				}
				gc, err := LoadGameConf(path)
				if err != nil {
					log.Printf("WARNING: config %s changed but could not be loaded: %v", path, err)
					continue
				}
				log.Printf("Config file changed: %s", path)
				apply(gc)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Config watcher error: %v", err)
			}
		}
	}()

	log.Printf("Watching %s for changes", path)
	return nil
}

// ApplyLimits pushes the game timeouts and participant cap from gc into
// the session manager. Sessions already waiting keep their deadline.
func (g *Game) ApplyLimits(gc *GameConf) {
	g.Sessions.SetLimits(gc.Timeouts(), gc.MaxParticipants)
	log.Printf("Game limits: invitation %ds, action %ds, turn %ds, max %d players",
		gc.InvitationTimeout, gc.ActionTimeout, gc.TurnTimeout, gc.MaxParticipants)
}

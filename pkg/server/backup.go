package server

import (
	"context"
	"log"
	"time"

	"github.com/crystal-mush/mushgames/pkg/archive"
)

// Backup writes an archive of the store and config into Conf.BackupDir
// and prunes old ones down to Conf.BackupKeep.
func (g *Game) Backup() (string, error) {
	if g.Conf.BackupDir == "" {
		return "", ErrNoBackupDir
	}
	path, err := archive.Create(archive.Params{
		Store:    g.Store,
		ConfPath: g.ConfPath,
		Dir:      g.Conf.BackupDir,
		Name:     g.Conf.MudName,
		Server:   VersionString(),
		Now:      g.clock.Now,
	})
	if err != nil {
		return "", err
	}
	if removed, err := archive.Prune(g.Conf.BackupDir, g.Conf.BackupKeep); err != nil {
		log.Printf("WARNING: backup prune: %v", err)
	} else if removed > 0 {
		log.Printf("Backup: pruned %d old archive(s)", removed)
	}
	return path, nil
}

// runBackups archives the store every Conf.BackupInterval until ctx ends.
func (g *Game) runBackups(ctx context.Context) {
	if g.Conf.BackupDir == "" || g.Conf.BackupInterval <= 0 {
		return
	}
	ticker := g.clock.NewTicker(time.Duration(g.Conf.BackupInterval) * time.Minute)
	defer ticker.Stop()
	log.Printf("Backups every %d minutes into %s", g.Conf.BackupInterval, g.Conf.BackupDir)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			path, err := g.Backup()
			if err != nil {
				log.Printf("WARNING: backup failed: %v", err)
				continue
			}
			log.Printf("Backup written: %s", path)
		}
	}
}

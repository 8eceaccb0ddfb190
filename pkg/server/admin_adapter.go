package server

import (
	"errors"
	"time"

	"github.com/crystal-mush/mushgames/pkg/admin"
	"github.com/crystal-mush/mushgames/pkg/archive"
	"github.com/crystal-mush/mushgames/pkg/session"
)

// ErrNoBackupDir is returned by backup operations when backup_dir is unset.
var ErrNoBackupDir = errors.New("backups are not configured")

// adminController exposes a Game to the admin API.
type adminController struct {
	game    *Game
	started time.Time
	stop    func()
}

func (c *adminController) Status() map[string]any {
	g := c.game
	return map[string]any{
		"name":           g.Conf.MudName,
		"version":        Version,
		"port":           g.Conf.Port,
		"uptime_seconds": time.Since(c.started).Seconds(),
		"objects":        g.DB.Len(),
		"players":        len(g.DB.Players()),
		"connections":    g.ConnectionStats(),
		"sessions":       g.SessionStats(),
		"memory":         g.MemoryStats(),
	}
}

func (c *adminController) Sessions() []session.Info {
	return c.game.Sessions.Sessions()
}

func (c *adminController) AbortSession(id session.ID, reason string) error {
	return c.game.Sessions.Abort(id, reason)
}

func (c *adminController) Backup() (string, error) {
	return c.game.Backup()
}

func (c *adminController) Backups() ([]archive.Info, error) {
	if c.game.Conf.BackupDir == "" {
		return nil, ErrNoBackupDir
	}
	return archive.List(c.game.Conf.BackupDir)
}

func (c *adminController) WallAll(msg string) {
	c.game.WallAll(msg)
}

func (c *adminController) Shutdown() {
	c.stop()
}

var _ admin.Controller = (*adminController)(nil)

// WallAll sends msg to every logged-in connection.
func (g *Game) WallAll(msg string) {
	for _, d := range g.Conns.AllDescriptors() {
		if d.State == ConnConnected {
			d.Send(msg)
		}
	}
}

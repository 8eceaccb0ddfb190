package admin

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/crystal-mush/mushgames/pkg/session"
)

type sessionView struct {
	ID           string    `json:"id"`
	Game         string    `json:"game"`
	Phase        string    `json:"phase"`
	Initiator    string    `json:"initiator"`
	Participants []string  `json:"participants"`
	Started      time.Time `json:"started"`
	Deadline     time.Time `json:"deadline,omitzero"`
}

func viewOf(info session.Info) sessionView {
	return sessionView{
		ID:        string(info.ID),
		Game:      info.Game,
		Phase:     info.Phase.String(),
		Initiator: info.Initiator.Name,
		Participants: lo.Map(info.Participants, func(p session.Participant, _ int) string {
			return p.Name
		}),
		Started:  info.Started,
		Deadline: info.Deadline,
	}
}

func (a *Admin) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := a.controller.Status()
	status["shutdown"] = a.shutdownStatus.Load()
	writeJSON(w, http.StatusOK, status)
}

func (a *Admin) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, lo.Map(a.controller.Sessions(), func(info session.Info, _ int) sessionView {
		return viewOf(info)
	}))
}

func (a *Admin) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "stopped by an administrator"
	}

	id := session.ID(r.PathValue("id"))
	if err := a.controller.AbortSession(id, req.Reason); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "no such session")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("admin: aborted session %s from %s: %s", id.Short(), r.RemoteAddr, req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted", "id": string(id)})
}

func (a *Admin) handleBackups(w http.ResponseWriter, _ *http.Request) {
	list, err := a.controller.Backups()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *Admin) handleBackupNow(w http.ResponseWriter, r *http.Request) {
	path, err := a.controller.Backup()
	if err != nil {
		log.Printf("admin: backup from %s failed: %v", r.RemoteAddr, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": path})
}

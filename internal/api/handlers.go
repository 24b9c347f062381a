package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/star/orbitrack/internal/export"
	"github.com/star/orbitrack/internal/httputil"
	"github.com/star/orbitrack/internal/session"
	"github.com/star/orbitrack/internal/tle"
)

// recordView is the JSON form of one catalog entry.
type recordView struct {
	Index   int        `json:"index"`
	Name    string     `json:"name"`
	NORADID int        `json:"norad_id,omitempty"`
	Epoch   *time.Time `json:"epoch,omitempty"`
}

func newRecordView(i int, rec tle.Record) recordView {
	v := recordView{Index: i, Name: rec.Name}
	if id, err := rec.NORADID(); err == nil {
		v.NORADID = id
	}
	if epoch, err := rec.Epoch(); err == nil {
		v.Epoch = &epoch
	}
	return v
}

type sessionView struct {
	State      string      `json:"state"`
	Satellites int         `json:"satellites"`
	Selected   *recordView `json:"selected"`
	Samples    int         `json:"samples"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func sessionHandler(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := sess.Snapshot()
		view := sessionView{
			State:      snap.State.String(),
			Satellites: len(snap.Catalog),
			Samples:    snap.Samples.Len(),
			UpdatedAt:  snap.UpdatedAt.UTC(),
		}
		if rec, ok := snap.Record(); ok {
			rv := newRecordView(snap.Selected, rec)
			view.Selected = &rv
		}
		httputil.WriteJSON(w, http.StatusOK, view)
	}
}

func catalogHandler(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog := sess.Catalog()
		views := make([]recordView, len(catalog))
		for i, rec := range catalog {
			views[i] = newRecordView(i, rec)
		}
		httputil.WriteJSON(w, http.StatusOK, views)
	}
}

// samplesHandler serves the current sample set as JSON, or CSV with
// ?format=csv.
func samplesHandler(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := sess.Samples()
		if err != nil {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}

		format := export.JSON
		switch r.URL.Query().Get("format") {
		case "", "json":
		case "csv":
			format = export.CSV
		default:
			httputil.WriteError(w, http.StatusBadRequest, "format must be json or csv")
			return
		}

		if format == export.CSV {
			w.Header().Set("Content-Type", "text/csv")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		if err := export.Write(w, format, set); err != nil {
			logger.Warn("writing samples response failed", "error", err)
		}
	}
}

package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/punchamoorthee/ledgerbank/internal/domain"
)

func (h *Handler) StatementHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	from, to, err := dateRange(r.URL.Query())
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	stmt, err := h.ledger.Statement(r.Context(), caller(r), id, from, to)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}

	// Render fully before writing headers so a failure can still be a JSON
	// error.
	var buf bytes.Buffer
	if err := stmt.WriteCSV(&buf); err != nil {
		h.respondWithErr(w, domain.StoreError("render statement", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(
		`attachment; filename="statement-%s.csv"`, stmt.GeneratedAt.Format("20060102")))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func periodParam(r *http.Request) (domain.Period, error) {
	return domain.ParsePeriod(r.URL.Query().Get("period"))
}

func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	summary, err := h.analytics.Summarize(r.Context(), caller(r), period)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	breakdown, err := h.analytics.Categorize(r.Context(), caller(r), period)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, breakdown)
}

func (h *Handler) TimeSeriesHandler(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	series, err := h.analytics.TimeSeries(r.Context(), caller(r), period)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, series)
}

func (h *Handler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q, "limit")
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	list, err := h.inbox.List(r.Context(), caller(r), domain.NotificationStatus(q.Get("status")), limit)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

type markRequest struct {
	Status domain.NotificationStatus `json:"status"`
}

func (h *Handler) MarkNotificationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	var req markRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, err)
		return
	}
	if err := h.inbox.Mark(r.Context(), caller(r), id, req.Status); err != nil {
		h.respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.inbox.MarkAllRead(r.Context(), caller(r))
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	if err := h.inbox.Delete(r.Context(), caller(r), id); err != nil {
		h.respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

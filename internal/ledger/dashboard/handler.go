package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/ledger/db"
	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
	"github.com/batabung/batabung/internal/logger"
)

// CountSource reports per-status record counts for an owner.
type CountSource interface {
	Counts(ctx context.Context, ownerID string) (*db.StatusCounts, error)
}

// Handler turns publisher transitions and sync reports into dashboard
// messages.
type Handler struct {
	server *Server
	pub    *ledgersync.Publisher
	counts CountSource
	owner  string
	log    zerolog.Logger
}

// NewHandler creates a handler broadcasting through server. counts may be
// nil, in which case no counts messages are sent.
func NewHandler(server *Server, pub *ledgersync.Publisher, counts CountSource, ownerID string, log *zerolog.Logger) *Handler {
	return &Handler{
		server: server,
		pub:    pub,
		counts: counts,
		owner:  ownerID,
		log:    logger.OrDefault(log, "dashboard"),
	}
}

// Watch forwards every state transition until ctx is done.
func (h *Handler) Watch(ctx context.Context) {
	states, cancel := h.pub.Subscribe(8)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := h.server.BroadcastData(MessageTypeSyncState, state); err != nil {
				h.log.Error().Err(err).Msg("failed to broadcast state")
				continue
			}
			if state.Phase != ledgersync.PhaseSyncing {
				h.SendCounts(ctx)
			}
		}
	}
}

// OnReport broadcasts the outcome of a sync run. Its signature matches the
// scheduler's OnRun hook.
func (h *Handler) OnReport(report *ledgersync.Report, err error) {
	data := ReportData{Report: report}
	if err != nil {
		data.Error = err.Error()
	}
	if err := h.server.BroadcastData(MessageTypeSyncReport, data); err != nil {
		h.log.Error().Err(err).Msg("failed to broadcast report")
	}
}

// SendCounts broadcasts the owner's current record counts.
func (h *Handler) SendCounts(ctx context.Context) {
	if h.counts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	counts, err := h.counts.Counts(ctx, h.owner)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to load counts")
		return
	}
	if err := h.server.BroadcastData(MessageTypeCounts, counts); err != nil {
		h.log.Error().Err(err).Msg("failed to broadcast counts")
	}
}

package shared

import (
	"log/slog"
	"net/http"

	"personnel/internal/domain/audit"
	"personnel/internal/platform/requestctx"
	"personnel/internal/transport/http/middleware"
)

// RecordAudit fills the request scoped fields of entry and stores it. A
// failed audit write is logged and does not fail the request.
func RecordAudit(r *http.Request, recorder audit.Recorder, entry audit.Entry) {
	if recorder == nil {
		return
	}
	ctx := r.Context()
	if entry.Actor == "" {
		entry.Actor = requestctx.GetActor(ctx)
	}
	entry.RequestID = requestctx.GetRequestID(ctx)
	entry.IP = middleware.ClientIP(r)
	if err := recorder.Record(ctx, entry); err != nil {
		slog.Warn("audit record failed", "action", entry.Action, "entityId", entry.EntityID, "err", err)
	}
}

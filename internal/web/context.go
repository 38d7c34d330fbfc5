package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/logging"
)

// requestContext attaches the client address and user agent for the import
// run audit, and the session id for logging when one is given.
func requestContext(r *http.Request, sessionID string) context.Context {
	ctx := core.ContextWithClient(r.Context(), r.RemoteAddr, r.UserAgent())
	if sessionID != "" {
		ctx = logging.WithSession(ctx, sessionID)
	}
	return ctx
}

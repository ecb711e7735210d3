package testutil

import (
	"net/http"
	"time"

	id "eventpass/pkg/domain"
	"eventpass/pkg/requestcontext"
)

// AsUser marks the request as authenticated by userID, the way the auth
// middleware would.
func AsUser(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// AtTime pins the request-scoped clock.
func AtTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

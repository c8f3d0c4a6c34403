package api

import (
	"context"
	"net/http"
	"strings"
)

const (
	headerPublishAttempted = "x-publish-attempted"
	headerPublishSucceeded = "x-publish-succeeded"
	headerPublishError     = "x-publish-error"

	maxPublishErrorBytes = 512
)

// implicitPublish runs a publish triggered by a live-impacting mutation and
// records the outcome in response headers. A failed publish never fails the
// mutation; the next trigger redoes it.
func (s *Server) implicitPublish(ctx context.Context, w http.ResponseWriter, environmentID string) {
	w.Header().Set(headerPublishAttempted, "true")
	if _, err := s.publisher.Publish(ctx, environmentID); err != nil {
		w.Header().Set(headerPublishSucceeded, "false")
		w.Header().Set(headerPublishError, headerLine(err.Error()))
		s.log.Error().Err(err).Str("environment_id", environmentID).Msg("implicit publish failed")
		return
	}
	w.Header().Set(headerPublishSucceeded, "true")
}

// publishNotTriggered marks a publish-capable mutation whose trigger
// condition did not fire.
func publishNotTriggered(w http.ResponseWriter) {
	w.Header().Set(headerPublishAttempted, "false")
	w.Header().Set(headerPublishSucceeded, "false")
}

// headerLine flattens an error message into a single trimmed header value
// of at most 512 bytes. CR and LF would corrupt the header block.
func headerLine(msg string) string {
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxPublishErrorBytes {
		msg = msg[:maxPublishErrorBytes]
	}
	return msg
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"example.com/verve/internal/domain"
	"example.com/verve/internal/engine"
	"example.com/verve/internal/events"
)

// TrackCleaner is the engine capability used by TrackHandler.
type TrackCleaner interface {
	CleanAndDeriveTrack(ctx context.Context, userID, activityID string) (engine.TrackResult, error)
}

// TrackHandler runs the cleaning pipeline for every uploaded track.
type TrackHandler struct {
	cleaner TrackCleaner
	logger  *log.Logger
}

// NewTrackHandler constructs a TrackHandler.
func NewTrackHandler(cleaner TrackCleaner, logger *log.Logger) *TrackHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &TrackHandler{cleaner: cleaner, logger: logger}
}

// Handle implements Handler. Events other than activity.track_uploaded are ignored.
func (h *TrackHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TrackUploadedType {
		return nil
	}

	var event events.TrackUploaded
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return Permanent(fmt.Errorf("decode %s: %w", msg.EventType, err))
	}
	if strings.TrimSpace(event.UserID) == "" {
		event.UserID = msg.UserID
	}
	if strings.TrimSpace(event.ActivityID) == "" || strings.TrimSpace(event.UserID) == "" {
		return Permanent(errors.New("activity_id and user_id are required"))
	}

	result, err := h.cleaner.CleanAndDeriveTrack(ctx, event.UserID, event.ActivityID)
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMissingIdentity):
		return Permanent(err)
	case err != nil:
		return err
	}
	h.logger.Printf("cleaned track activity=%s points=%d removed=%d skipped=%d",
		event.ActivityID, len(result.Points), result.Removed, len(result.Skipped))
	return nil
}

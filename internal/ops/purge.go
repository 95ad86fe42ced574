package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/store"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	SessionID string
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	SessionID string `json:"session_id"`
	Purged    int    `json:"purged"`
	Message   string `json:"message"`
}

// Purge permanently deletes every thought of a session. The session itself
// is a derived entity, so removing its last thought removes the session.
func Purge(ctx context.Context, st store.Store, input PurgeInput) (*PurgeOutput, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, errors.NewInvalidRequest("session_id is required")
	}

	count, err := st.DeleteSession(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.NewSessionNotFound(input.SessionID)
	}

	thoughtWord := "thought"
	if count > 1 {
		thoughtWord = "thoughts"
	}

	return &PurgeOutput{
		SessionID: input.SessionID,
		Purged:    count,
		Message:   fmt.Sprintf("Permanently deleted %d %s from session %q", count, thoughtWord, input.SessionID),
	}, nil
}

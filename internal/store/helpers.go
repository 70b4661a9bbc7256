package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/Insura/internal/models"
)

// encodeState serialises a conversation for the state_json column.
func encodeState(state *models.ConversationState) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	return string(b), nil
}

// decodeState parses a state_json column. The user_id column is
// authoritative over whatever the JSON carries.
func decodeState(userID, stateJSON string) (*models.ConversationState, error) {
	var state models.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation state for %s: %w", userID, err)
	}
	state.UserID = userID
	if state.Responses == nil {
		state.Responses = map[string]string{}
	}
	if state.Documents == nil {
		state.Documents = map[models.DocumentKind]*models.DocumentRecord{}
	}
	return &state, nil
}

// touch stamps the record before it is written.
func touch(state *models.ConversationState) {
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
}

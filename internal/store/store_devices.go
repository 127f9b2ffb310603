package store

import (
	"context"
	"fmt"
	"strings"

	"mediapipe/internal/services"
)

// RegisterDeviceToken stores a push token for a user. A token moves to the
// latest user that registers it.
func (s *Store) RegisterDeviceToken(ctx context.Context, token DeviceToken) error {
	token.UserID = strings.TrimSpace(token.UserID)
	token.Token = strings.TrimSpace(token.Token)
	if token.UserID == "" || token.Token == "" {
		return services.Wrap(services.ErrValidation, "store", "register device token", "user id and token are required", nil)
	}
	now := formatTime(s.now())
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO device_tokens (token, user_id, platform, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(token) DO UPDATE SET
            user_id = excluded.user_id,
            platform = excluded.platform,
            updated_at = excluded.updated_at`,
		token.Token,
		token.UserID,
		nullableString(token.Platform),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("register device token: %w", err)
	}
	return nil
}

// RemoveDeviceTokens deletes the given tokens and returns how many existed.
func (s *Store) RemoveDeviceTokens(ctx context.Context, tokens ...string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	args := make([]any, len(tokens))
	for i, token := range tokens {
		args[i] = token
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM device_tokens WHERE token IN (`+makePlaceholders(len(tokens))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("remove device tokens: %w", err)
	}
	return res.RowsAffected()
}

// DeviceTokens returns the registered tokens keyed by user id. Users with no
// tokens are absent from the map.
func (s *Store) DeviceTokens(ctx context.Context, userIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT user_id, token FROM device_tokens WHERE user_id IN (`+makePlaceholders(len(userIDs))+`) ORDER BY user_id, created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("device tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, token string
		if err := rows.Scan(&userID, &token); err != nil {
			return nil, err
		}
		result[userID] = append(result[userID], token)
	}
	return result, rows.Err()
}

package database

import (
	"context"
	"fmt"
	"time"
)

func (s *sqliteDB) SaveInvocation(ctx context.Context, inv Invocation) error {
	_, err := s.ExecWithRetry(ctx, `
		INSERT INTO invocations (id, chat_id, message_id, user_id, command, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.ChatID, inv.MessageID, inv.UserID, inv.Command, string(inv.Status), inv.Error, inv.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save invocation %s: %w", inv.ID, err)
	}
	return nil
}

// CountInvocations counts commands the user ran successfully within since.
func (s *sqliteDB) CountInvocations(userID int64, since time.Duration) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM invocations
		WHERE user_id = ? AND status = ? AND created_at >= datetime('now', ?)
	`, userID, string(StatusOK), sqliteModifier(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count invocations: %w", err)
	}
	return count, nil
}

func (s *sqliteDB) PurgeOldInvocations(retention time.Duration) (int64, error) {
	res, err := s.db.Exec("DELETE FROM invocations WHERE created_at < datetime('now', ?)", sqliteModifier(retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func sqliteModifier(d time.Duration) string {
	return fmt.Sprintf("-%d seconds", int64(d.Seconds()))
}

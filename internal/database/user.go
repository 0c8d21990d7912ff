package database

import "fmt"

// GetUser returns sql.ErrNoRows for users never stored.
func (s *sqliteDB) GetUser(userID int64) (*User, error) {
	user := &User{}
	err := s.db.QueryRow(
		"SELECT id, first_name, username, created_at, updated_at FROM users WHERE id = ?",
		userID,
	).Scan(&user.ID, &user.FirstName, &user.Username, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return user, err
	}
	return user, nil
}

// SaveUser upserts the profile. created_at keeps the first time the user was
// seen.
func (s *sqliteDB) SaveUser(user User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, first_name, username)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			username = excluded.username,
			updated_at = CURRENT_TIMESTAMP
	`, user.ID, user.FirstName, user.Username)
	if err != nil {
		return fmt.Errorf("failed to save user %d: %w", user.ID, err)
	}
	return nil
}

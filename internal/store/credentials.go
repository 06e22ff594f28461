package store

import (
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

// GetCredential fetches a credential by ID.
func (s *Store) GetCredential(id string) (*model.Credential, error) {
	c := &model.Credential{}
	err := s.db.QueryRow(`SELECT id, name, username, password, owner_id FROM credentials WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Username, &c.Password, &c.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("store: get credential %s: %w", id, err)
	}
	return c, nil
}

// ListCredentialsByOwner returns every credential owned by ownerID.
func (s *Store) ListCredentialsByOwner(ownerID string) ([]model.Credential, error) {
	rows, err := s.db.Query(`SELECT id, name, username, password, owner_id FROM credentials WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list credentials for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.Credential
	for rows.Next() {
		var c model.Credential
		if err := rows.Scan(&c.ID, &c.Name, &c.Username, &c.Password, &c.OwnerID); err != nil {
			return nil, fmt.Errorf("store: scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertCredential inserts a new credential row, assigning it an ID if the
// caller left one unset.
func (s *Store) InsertCredential(c *model.Credential) error {
	if c.ID == "" {
		c.ID = model.NewID()
	}
	_, err := s.db.Exec(`INSERT INTO credentials (id, name, username, password, owner_id) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Username, c.Password, c.OwnerID)
	if err != nil {
		return fmt.Errorf("store: insert credential: %w", err)
	}
	return nil
}

// UpdateCredential updates an existing credential row by ID.
func (s *Store) UpdateCredential(c *model.Credential) error {
	_, err := s.db.Exec(`UPDATE credentials SET name=?, username=?, password=? WHERE id=? AND owner_id=?`,
		c.Name, c.Username, c.Password, c.ID, c.OwnerID)
	if err != nil {
		return fmt.Errorf("store: update credential %s: %w", c.ID, err)
	}
	return nil
}

// DeleteCredential removes a credential row by ID.
func (s *Store) DeleteCredential(id string) error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete credential %s: %w", id, err)
	}
	return nil
}

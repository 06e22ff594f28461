package store

import (
	"encoding/json"
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

func scanChannel(row interface {
	Scan(dest ...interface{}) error
}) (*model.NotificationChannel, error) {
	c := &model.NotificationChannel{}
	var configText string
	if err := row.Scan(&c.ID, &c.Name, &c.Kind, &configText, &c.OwnerID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configText), &c.Config); err != nil {
		return nil, fmt.Errorf("decoding channel config: %w", err)
	}
	return c, nil
}

const channelColumns = `id, name, kind, config, owner_id`

// GetNotificationChannel fetches a channel by ID.
func (s *Store) GetNotificationChannel(id string) (*model.NotificationChannel, error) {
	row := s.db.QueryRow(`SELECT `+channelColumns+` FROM notification_channels WHERE id = ?`, id)
	c, err := scanChannel(row)
	if err != nil {
		return nil, fmt.Errorf("store: get channel %s: %w", id, err)
	}
	return c, nil
}

// ListNotificationChannelsByOwner returns every channel owned by ownerID.
func (s *Store) ListNotificationChannelsByOwner(ownerID string) ([]model.NotificationChannel, error) {
	rows, err := s.db.Query(`SELECT `+channelColumns+` FROM notification_channels WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list channels for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.NotificationChannel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan channel: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// InsertNotificationChannel inserts a new channel row, assigning it an ID if
// the caller left one unset.
func (s *Store) InsertNotificationChannel(c *model.NotificationChannel) error {
	if c.ID == "" {
		c.ID = model.NewID()
	}
	configText, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("store: encoding channel config: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO notification_channels (`+channelColumns+`) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Kind, string(configText), c.OwnerID)
	if err != nil {
		return fmt.Errorf("store: insert channel: %w", err)
	}
	return nil
}

// UpdateNotificationChannel updates an existing channel row by ID.
func (s *Store) UpdateNotificationChannel(c *model.NotificationChannel) error {
	configText, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("store: encoding channel config: %w", err)
	}
	_, err = s.db.Exec(`UPDATE notification_channels SET name=?, kind=?, config=? WHERE id=? AND owner_id=?`,
		c.Name, c.Kind, string(configText), c.ID, c.OwnerID)
	if err != nil {
		return fmt.Errorf("store: update channel %s: %w", c.ID, err)
	}
	return nil
}

// DeleteNotificationChannel removes a channel row by ID.
func (s *Store) DeleteNotificationChannel(id string) error {
	_, err := s.db.Exec(`DELETE FROM notification_channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete channel %s: %w", id, err)
	}
	return nil
}

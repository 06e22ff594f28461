package store

import (
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

// GetVpnProfile fetches a VPN profile by ID.
func (s *Store) GetVpnProfile(id string) (*model.VpnProfile, error) {
	p := &model.VpnProfile{}
	var isDefault int
	err := s.db.QueryRow(`SELECT id, name, config_text, check_ip, is_default, owner_id FROM vpn_profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.ConfigText, &p.CheckIP, &isDefault, &p.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("store: get vpn profile %s: %w", id, err)
	}
	p.IsDefault = isDefault != 0
	return p, nil
}

// GetVpnProfileConfigText returns just the config text for id — the shape
// vpnmgr.ProfileLoader needs.
func (s *Store) GetVpnProfileConfigText(id string) (string, error) {
	var text string
	err := s.db.QueryRow(`SELECT config_text FROM vpn_profiles WHERE id = ?`, id).Scan(&text)
	if err != nil {
		return "", fmt.Errorf("store: get vpn profile config %s: %w", id, err)
	}
	return text, nil
}

// ListVpnProfilesByOwner returns every VPN profile owned by ownerID.
func (s *Store) ListVpnProfilesByOwner(ownerID string) ([]model.VpnProfile, error) {
	rows, err := s.db.Query(`SELECT id, name, config_text, check_ip, is_default, owner_id FROM vpn_profiles WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list vpn profiles for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.VpnProfile
	for rows.Next() {
		var p model.VpnProfile
		var isDefault int
		if err := rows.Scan(&p.ID, &p.Name, &p.ConfigText, &p.CheckIP, &isDefault, &p.OwnerID); err != nil {
			return nil, fmt.Errorf("store: scan vpn profile: %w", err)
		}
		p.IsDefault = isDefault != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertVpnProfile inserts a new VPN profile. If IsDefault is set, any other
// default profile for the same owner is cleared first so the "at most one
// default per tenant" invariant holds.
func (s *Store) InsertVpnProfile(p *model.VpnProfile) error {
	if p.ID == "" {
		p.ID = model.NewID()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: insert vpn profile: %w", err)
	}
	defer tx.Rollback()

	if p.IsDefault {
		if _, err := tx.Exec(`UPDATE vpn_profiles SET is_default = 0 WHERE owner_id = ?`, p.OwnerID); err != nil {
			return fmt.Errorf("store: clear prior default: %w", err)
		}
	}

	_, err = tx.Exec(`INSERT INTO vpn_profiles (id, name, config_text, check_ip, is_default, owner_id) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.ConfigText, p.CheckIP, boolToInt(p.IsDefault), p.OwnerID)
	if err != nil {
		return fmt.Errorf("store: insert vpn profile: %w", err)
	}
	return tx.Commit()
}

// UpdateVpnProfile updates an existing VPN profile by ID.
func (s *Store) UpdateVpnProfile(p *model.VpnProfile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: update vpn profile: %w", err)
	}
	defer tx.Rollback()

	if p.IsDefault {
		if _, err := tx.Exec(`UPDATE vpn_profiles SET is_default = 0 WHERE owner_id = ? AND id != ?`, p.OwnerID, p.ID); err != nil {
			return fmt.Errorf("store: clear prior default: %w", err)
		}
	}

	_, err = tx.Exec(`UPDATE vpn_profiles SET name=?, config_text=?, check_ip=?, is_default=? WHERE id=? AND owner_id=?`,
		p.Name, p.ConfigText, p.CheckIP, boolToInt(p.IsDefault), p.ID, p.OwnerID)
	if err != nil {
		return fmt.Errorf("store: update vpn profile %s: %w", p.ID, err)
	}
	return tx.Commit()
}

// DeleteVpnProfile removes a VPN profile, refusing when any device still
// references it.
func (s *Store) DeleteVpnProfile(id string) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM devices WHERE vpn_profile_id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("store: checking vpn profile references: %w", err)
	}
	if count > 0 {
		return ErrVpnProfileInUse
	}
	_, err := s.db.Exec(`DELETE FROM vpn_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete vpn profile %s: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

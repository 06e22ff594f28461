package store

import (
	"database/sql"
	"fmt"

	"github.com/m360/sentinel/internal/model"
)

func scanDevice(row interface {
	Scan(dest ...interface{}) error
}) (*model.Device, error) {
	d := &model.Device{}
	var credentialID, maestroID, vpnProfileID sql.NullString
	var isMaestro int
	err := row.Scan(&d.ID, &d.ClientName, &d.IP, &d.MAC, &d.Node, &d.Status,
		&credentialID, &isMaestro, &maestroID, &vpnProfileID, &d.OwnerID)
	if err != nil {
		return nil, err
	}
	d.IsMaestro = isMaestro != 0
	if credentialID.Valid {
		d.CredentialID = &credentialID.String
	}
	if maestroID.Valid {
		d.MaestroID = &maestroID.String
	}
	if vpnProfileID.Valid {
		d.VpnProfileID = &vpnProfileID.String
	}
	return d, nil
}

const deviceColumns = `id, client_name, ip, mac, node, status, credential_id, is_maestro, maestro_id, vpn_profile_id, owner_id`

// GetDevice fetches a device by ID.
func (s *Store) GetDevice(id string) (*model.Device, error) {
	row := s.db.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("store: get device %s: %w", id, err)
	}
	return d, nil
}

// ListDevicesByOwner returns every device owned by ownerID.
func (s *Store) ListDevicesByOwner(ownerID string) ([]model.Device, error) {
	rows, err := s.db.Query(`SELECT `+deviceColumns+` FROM devices WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list devices for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan device: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// InsertDevice inserts a new device row, assigning it an ID if the caller
// left one unset.
func (s *Store) InsertDevice(d *model.Device) error {
	if d.ID == "" {
		d.ID = model.NewID()
	}
	_, err := s.db.Exec(`INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ClientName, d.IP, d.MAC, d.Node, d.Status, d.CredentialID, boolToInt(d.IsMaestro), d.MaestroID, d.VpnProfileID, d.OwnerID)
	if err != nil {
		return fmt.Errorf("store: insert device: %w", err)
	}
	return nil
}

// UpdateDevice updates an existing device row by ID. Promoting a device to
// maestro (IsMaestro=true) clears its own MaestroID, per the invariant that
// a maestro doesn't itself point at a maestro.
func (s *Store) UpdateDevice(d *model.Device) error {
	if d.IsMaestro {
		d.MaestroID = nil
	}
	_, err := s.db.Exec(`UPDATE devices SET client_name=?, ip=?, mac=?, node=?, status=?, credential_id=?, is_maestro=?, maestro_id=?, vpn_profile_id=? WHERE id=? AND owner_id=?`,
		d.ClientName, d.IP, d.MAC, d.Node, d.Status, d.CredentialID, boolToInt(d.IsMaestro), d.MaestroID, d.VpnProfileID, d.ID, d.OwnerID)
	if err != nil {
		return fmt.Errorf("store: update device %s: %w", d.ID, err)
	}
	return nil
}

// DeleteDevice removes a device and cascades its Monitor and Sensors (and
// their samples), inside a single transaction.
func (s *Store) DeleteDevice(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: delete device %s: %w", id, err)
	}
	defer tx.Rollback()

	if err := cascadeDeleteDeviceTx(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func cascadeDeleteDeviceTx(tx *sql.Tx, deviceID string) error {
	var monitorID string
	err := tx.QueryRow(`SELECT id FROM monitors WHERE device_id = ?`, deviceID).Scan(&monitorID)
	if err == nil {
		if err := cascadeDeleteMonitorTx(tx, monitorID); err != nil {
			return err
		}
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("store: find monitor for device %s: %w", deviceID, err)
	}

	if _, err := tx.Exec(`DELETE FROM devices WHERE id = ?`, deviceID); err != nil {
		return fmt.Errorf("store: delete device %s: %w", deviceID, err)
	}
	return nil
}

// GetDeviceWithJoins loads a device plus its credential, maestro, and vpn
// profile — the shape the Scheduler needs to launch a worker.
func (s *Store) GetDeviceWithJoins(id string) (*model.DeviceWithJoins, error) {
	d, err := s.GetDevice(id)
	if err != nil {
		return nil, err
	}
	return s.joinDevice(d)
}

func (s *Store) joinDevice(d *model.Device) (*model.DeviceWithJoins, error) {
	out := &model.DeviceWithJoins{Device: *d}

	if d.CredentialID != nil {
		cred, err := s.GetCredential(*d.CredentialID)
		if err != nil {
			return nil, fmt.Errorf("store: join credential for device %s: %w", d.ID, err)
		}
		out.Credential = cred
	}
	if d.MaestroID != nil {
		maestro, err := s.GetDevice(*d.MaestroID)
		if err != nil {
			return nil, fmt.Errorf("store: join maestro for device %s: %w", d.ID, err)
		}
		out.Maestro = maestro
	}
	if d.VpnProfileID != nil {
		profile, err := s.GetVpnProfile(*d.VpnProfileID)
		if err != nil {
			return nil, fmt.Errorf("store: join vpn profile for device %s: %w", d.ID, err)
		}
		out.VpnProfile = profile
	}
	return out, nil
}

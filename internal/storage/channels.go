package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrChannelNotFound is returned when a channel ID has no record.
var ErrChannelNotFound = errors.New("channel not found")

// Channel roles.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// ChannelRecord is the persisted state of one channel. Scripts and the last
// payment transaction are hex-encoded.
type ChannelRecord struct {
	ID      string
	Role    string
	Network string

	DepositTxID  string
	DepositVout  uint32
	DepositValue int64

	Expiry             int64
	SenderScript       string
	ReceiverScript     string
	ReceiverDestScript string

	LastPaymentTx string

	CreatedAt int64
	UpdatedAt int64
}

// NewChannelID returns a fresh channel identifier.
func NewChannelID() string {
	return uuid.New().String()
}

// SaveChannel inserts or replaces a channel record.
func (s *Storage) SaveChannel(c *ChannelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = NewChannelID()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	c.UpdatedAt = time.Now().Unix()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO channels (
			id, role, network,
			deposit_txid, deposit_vout, deposit_value,
			expiry, sender_script, receiver_script, receiver_dest_script,
			last_payment_tx, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Role, c.Network,
		c.DepositTxID, c.DepositVout, c.DepositValue,
		c.Expiry, c.SenderScript, c.ReceiverScript, c.ReceiverDestScript,
		c.LastPaymentTx, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save channel: %w", err)
	}
	return nil
}

// GetChannel loads a channel record by ID.
func (s *Storage) GetChannel(id string) (*ChannelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, role, network,
			deposit_txid, deposit_vout, deposit_value,
			expiry, sender_script, receiver_script, receiver_dest_script,
			COALESCE(last_payment_tx, ''), created_at, COALESCE(updated_at, 0)
		FROM channels WHERE id = ?`, id)

	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return c, err
}

// UpdateLastPayment records the latest payment transaction for a channel.
func (s *Storage) UpdateLastPayment(id, paymentTxHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE channels SET last_payment_tx = ?, updated_at = ? WHERE id = ?`,
		paymentTxHex, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return nil
}

// ListChannels returns all channel records, newest first.
func (s *Storage) ListChannels() ([]*ChannelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, role, network,
			deposit_txid, deposit_vout, deposit_value,
			expiry, sender_script, receiver_script, receiver_dest_script,
			COALESCE(last_payment_tx, ''), created_at, COALESCE(updated_at, 0)
		FROM channels ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*ChannelRecord
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// DeleteChannel removes a channel record.
func (s *Storage) DeleteChannel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChannel(row rowScanner) (*ChannelRecord, error) {
	var c ChannelRecord
	err := row.Scan(
		&c.ID, &c.Role, &c.Network,
		&c.DepositTxID, &c.DepositVout, &c.DepositValue,
		&c.Expiry, &c.SenderScript, &c.ReceiverScript, &c.ReceiverDestScript,
		&c.LastPaymentTx, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Package database persists identity links and per-channel defaults in
// sqlite. GitHub tokens are encrypted at rest with AES-GCM; everything else
// is plain columns.
package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"io"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db  *sql.DB
	gcm cipher.AEAD
}

// Link ties a Discord user to a GitHub account. Token is the OAuth access
// token obtained through the device flow.
type Link struct {
	DiscordID string
	Login     string
	Token     string
}

// ChannelDefaults holds per-channel settings, currently the default project
// title used when a command omits one.
type ChannelDefaults struct {
	ChannelID      string
	DefaultProject string
}

func New(dbPath string, encryptionKey []byte) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	d := &Database{
		db:  db,
		gcm: gcm,
	}

	if err := d.createTables(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Database) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS links (
		discord_id TEXT PRIMARY KEY,
		github_login TEXT NOT NULL,
		github_token TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channel_defaults (
		channel_id TEXT PRIMARY KEY,
		default_project TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

func (d *Database) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, d.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := d.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (d *Database) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	nonceSize := d.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := d.gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// SaveLink inserts or replaces the link for a Discord user.
func (d *Database) SaveLink(link *Link) error {
	encryptedToken, err := d.encrypt(link.Token)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO links (discord_id, github_login, github_token, updated_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(discord_id) DO UPDATE SET
		github_login = excluded.github_login,
		github_token = excluded.github_token,
		updated_at = CURRENT_TIMESTAMP
	`

	_, err = d.db.Exec(query, link.DiscordID, link.Login, encryptedToken)
	return err
}

// GetLink returns the link for a Discord user, or nil when none exists.
func (d *Database) GetLink(discordID string) (*Link, error) {
	query := `SELECT discord_id, github_login, github_token FROM links WHERE discord_id = ?`

	var link Link
	var encryptedToken string

	err := d.db.QueryRow(query, discordID).Scan(&link.DiscordID, &link.Login, &encryptedToken)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	token, err := d.decrypt(encryptedToken)
	if err != nil {
		return nil, err
	}

	link.Token = token
	return &link, nil
}

func (d *Database) DeleteLink(discordID string) error {
	_, err := d.db.Exec("DELETE FROM links WHERE discord_id = ?", discordID)
	return err
}

// SaveChannelDefaults inserts or replaces the defaults for a channel.
func (d *Database) SaveChannelDefaults(settings *ChannelDefaults) error {
	query := `
	INSERT INTO channel_defaults (channel_id, default_project, updated_at)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(channel_id) DO UPDATE SET
		default_project = excluded.default_project,
		updated_at = CURRENT_TIMESTAMP
	`

	_, err := d.db.Exec(query, settings.ChannelID, settings.DefaultProject)
	return err
}

// GetChannelDefaults returns the defaults for a channel. A channel with no
// saved row gets zero-valued defaults rather than an error.
func (d *Database) GetChannelDefaults(channelID string) (*ChannelDefaults, error) {
	query := `SELECT channel_id, default_project FROM channel_defaults WHERE channel_id = ?`

	var settings ChannelDefaults
	err := d.db.QueryRow(query, channelID).Scan(&settings.ChannelID, &settings.DefaultProject)
	if err != nil {
		if err == sql.ErrNoRows {
			return &ChannelDefaults{ChannelID: channelID}, nil
		}
		return nil, err
	}

	return &settings, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	key := []byte("0123456789abcdef0123456789abcdef")
	d, err := New(filepath.Join(t.TempDir(), "test.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestLinkRoundTrip(t *testing.T) {
	d := openTestDB(t)

	got, err := d.GetLink("discord-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, d.SaveLink(&Link{DiscordID: "discord-1", Login: "octocat", Token: "gho_secret"}))

	got, err = d.GetLink("discord-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "octocat", got.Login)
	assert.Equal(t, "gho_secret", got.Token)

	// Relinking the same user replaces the row.
	require.NoError(t, d.SaveLink(&Link{DiscordID: "discord-1", Login: "hubot", Token: "gho_other"}))
	got, err = d.GetLink("discord-1")
	require.NoError(t, err)
	assert.Equal(t, "hubot", got.Login)

	require.NoError(t, d.DeleteLink("discord-1"))
	got, err = d.GetLink("discord-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenStoredEncrypted(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.SaveLink(&Link{DiscordID: "discord-1", Login: "octocat", Token: "gho_secret"}))

	var raw string
	err := d.db.QueryRow(`SELECT github_token FROM links WHERE discord_id = ?`, "discord-1").Scan(&raw)
	require.NoError(t, err)
	assert.NotContains(t, raw, "gho_secret")
}

func TestChannelDefaults(t *testing.T) {
	d := openTestDB(t)

	got, err := d.GetChannelDefaults("chan-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-1", got.ChannelID)
	assert.Empty(t, got.DefaultProject)

	require.NoError(t, d.SaveChannelDefaults(&ChannelDefaults{ChannelID: "chan-1", DefaultProject: "Backlog"}))
	got, err = d.GetChannelDefaults("chan-1")
	require.NoError(t, err)
	assert.Equal(t, "Backlog", got.DefaultProject)
}

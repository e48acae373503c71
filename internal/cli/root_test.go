package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "thebeat", cmd.Use)
	assert.Contains(t, cmd.Long, "heart rates")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"listen", "volume", "test", "trace", "validate"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)
}

func TestListenCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	listenCmd, _, err := cmd.Find([]string{"listen"})
	require.NoError(t, err)

	roomFlag := listenCmd.Flags().Lookup("room")
	require.NotNil(t, roomFlag)
	assert.Equal(t, "r", roomFlag.Shorthand)

	for _, name := range []string{"snapshot-url", "volume-url", "poll-interval", "step-interval", "miss-threshold", "audio-dir", "no-audio", "journal", "device-id"} {
		assert.NotNil(t, listenCmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestVolumeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	volumeCmd, _, err := cmd.Find([]string{"volume"})
	require.NoError(t, err)

	require.NotNil(t, volumeCmd.Flags().Lookup("room"))
	require.NotNil(t, volumeCmd.Flags().Lookup("volume-url"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestTraceCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	traceCmd, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)

	dbFlag := traceCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	// --db is required, so default is empty
	assert.Equal(t, "", dbFlag.DefValue)

	require.NotNil(t, traceCmd.Flags().Lookup("session"))
	require.NotNil(t, traceCmd.Flags().Lookup("kind"))
	require.NotNil(t, traceCmd.Flags().Lookup("list"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "validate", "thebeat.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadConfig_Layers(t *testing.T) {
	t.Setenv("THEBEAT_ROOM", "")
	// Unset so the dotenv file can provide it; t.Setenv restores it.
	t.Setenv("THEBEAT_POLL_INTERVAL", "")
	require.NoError(t, os.Unsetenv("THEBEAT_POLL_INTERVAL"))

	path := writeFile(t, "thebeat.yaml", "room: lobby\npoll_interval: 750ms\n")
	env := writeFile(t, ".env", "THEBEAT_POLL_INTERVAL=1s\n")

	opts := &RootOptions{Config: path, EnvFile: env}
	cfg, err := opts.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "lobby", cfg.Room)
	assert.Equal(t, "1s", cfg.PollInterval.String())
}

func TestLoadConfig_MissingEnvFileIgnored(t *testing.T) {
	opts := &RootOptions{EnvFile: t.TempDir() + "/missing.env"}
	_, err := opts.LoadConfig()
	require.NoError(t, err)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

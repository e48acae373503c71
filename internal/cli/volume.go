package cli

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/thebeat/internal/session"
	"github.com/roach88/thebeat/internal/transport"
	"github.com/roach88/thebeat/internal/volume"
)

// VolumeOptions holds flags for the volume command.
type VolumeOptions struct {
	*RootOptions
	Room      string
	VolumeURL string
}

// VolumeResult is the JSON payload of a successful volume command.
type VolumeResult struct {
	Room     string  `json:"room"`
	LevelDB  float64 `json:"level_db"`
	DeviceID string  `json:"device_id"`
}

// NewVolumeCommand creates the volume command.
func NewVolumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VolumeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "volume <level-db>",
		Short: "Set a room's shared volume once",
		Long: `Send one volume-set command to the room server and exit.

The command is sent under a fresh device id, so every listening device,
including ones on this machine, adopts the new level on its next poll.

Examples:
  thebeat volume -- -6 --room lobby
  thebeat volume 0 --room lobby --volume-url http://10.0.0.5:8000/api/v1/hr`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVolume(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Room, "room", "r", "", "room whose volume to set")
	cmd.Flags().StringVar(&opts.VolumeURL, "volume-url", "", "volume endpoint base URL")

	return cmd
}

func runVolume(opts *VolumeOptions, arg string, cmd *cobra.Command) error {
	level, err := strconv.ParseFloat(arg, 64)
	if err != nil || math.IsNaN(level) || math.IsInf(level, 0) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid level %q", arg), volume.ErrInvalidLevel)
	}

	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load config", err)
	}
	if cmd.Flags().Changed("room") {
		cfg.Room = opts.Room
	}
	if cmd.Flags().Changed("volume-url") {
		cfg.Server.VolumeURL = opts.VolumeURL
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitFailure, "invalid config", err)
	}
	if err := cfg.RequireRoom(); err != nil {
		return WrapExitError(ExitCommandError, "cannot set volume", err)
	}

	client := transport.NewClient(cfg.Server.SnapshotURL, cfg.Server.VolumeURL)
	if cfg.Server.Timeout > 0 {
		client.SetTimeout(cfg.Server.Timeout)
	}

	deviceID := session.NewDeviceID()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := client.SetVolume(ctx, cfg.Room, volume.Command{LevelDB: level, OriginDeviceID: deviceID}); err != nil {
		_ = formatter.Error(ErrCodeServer, "volume-set failed", err.Error())
		return WrapExitError(ExitFailure, "volume-set failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(VolumeResult{Room: cfg.Room, LevelDB: level, DeviceID: deviceID})
	}
	return formatter.Success(fmt.Sprintf("Set %s volume to %.1f dB", cfg.Room, level))
}

// Package particlecmder
package particlecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/saamerm/particle/cmd/particle/auth"
	configcmder "github.com/saamerm/particle/cmd/particle/config"
	devicescmder "github.com/saamerm/particle/cmd/particle/devices"
	eventscmder "github.com/saamerm/particle/cmd/particle/events"
	listencmder "github.com/saamerm/particle/cmd/particle/listen"
	publishcmder "github.com/saamerm/particle/cmd/particle/publish"
	versioncmder "github.com/saamerm/particle/cmd/version"
	"github.com/saamerm/particle/pkg/config"
)

const particleLongDesc string = `particle talks to the Particle cloud from the command line.

Log in, inspect and claim devices, publish events and follow the live event
stream, optionally recording it to SQLite or Postgres and forwarding it to
Kafka:
  particle login               Log in and store the access token
  particle devices list        List your devices
  particle publish NAME DATA   Publish an event
  particle listen [PREFIX]     Follow the event stream
  particle events              Show recorded events`

const particleShortDesc string = "Particle cloud CLI"

func NewParticleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "particle",
		Short:        particleShortDesc,
		Long:         particleLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	apiURL := config.Flags[config.FlagAPIURL]
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .particle/ config directory")
	cmd.PersistentFlags().String(apiURL.Name, "", apiURL.Description)

	// Add subcommands
	cmd.AddCommand(authcmder.NewLoginCmd())
	cmd.AddCommand(authcmder.NewLogoutCmd())
	cmd.AddCommand(authcmder.NewWhoamiCmd())
	cmd.AddCommand(authcmder.NewSignupCmd())
	cmd.AddCommand(devicescmder.NewDevicesCmd())
	cmd.AddCommand(publishcmder.NewPublishCmd())
	cmd.AddCommand(listencmder.NewListenCmd())
	cmd.AddCommand(eventscmder.NewEventsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

// Package publishcmder provides the publish command.
package publishcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saamerm/particle/cmd/particle/session"
	"github.com/saamerm/particle/pkg/cliui"
	"github.com/saamerm/particle/pkg/particle"
)

const publishLongDesc string = `Publish an event to the Particle cloud.

Events are public unless --private is set. Extra arguments after the event
name are joined with spaces into the event data.

Examples:
  particle publish temperature 21.5
  particle publish door-opened --private
  particle publish status "all good" --ttl 120`

type publishCommander struct {
	private bool
	ttl     int
}

func NewPublishCmd() *cobra.Command {
	cmder := &publishCommander{}

	cmd := &cobra.Command{
		Use:   "publish <name> [data...]",
		Short: "Publish an event",
		Long:  publishLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.FromCommand(cmd)
			if err != nil {
				return err
			}
			if err := sess.RequireLogin(cmd.Context()); err != nil {
				return err
			}

			req := cmder.request(args)
			scope := "public"
			if req.Private {
				scope = "private"
			}

			err = cliui.Step(cmd.OutOrStdout(), fmt.Sprintf("Publishing %s event %s", scope, cliui.EventStyle.Render(req.Name)), func() error {
				return sess.Cloud.PublishEvent(cmd.Context(), req)
			})
			return session.Describe(err)
		},
	}

	cmd.Flags().BoolVar(&cmder.private, "private", false, "Publish a private event")
	cmd.Flags().IntVar(&cmder.ttl, "ttl", 0, "Time to live in seconds (0 uses the cloud default)")

	return cmd
}

func (c *publishCommander) request(args []string) particle.PublishRequest {
	return particle.PublishRequest{
		Name:    args[0],
		Data:    strings.Join(args[1:], " "),
		Private: c.private,
		TTL:     c.ttl,
	}
}

// Package devicescmder provides the devices command for listing, inspecting
// and claiming devices.
package devicescmder

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saamerm/particle/cmd/particle/session"
	"github.com/saamerm/particle/pkg/cliui"
	"github.com/saamerm/particle/pkg/particle"
)

const devicesLongDesc string = `Manage the devices registered to the logged in user.

Examples:
  particle devices list
  particle devices get 0123456789abcdef01234567
  particle devices claim 0123456789abcdef01234567`

const maxCellWidth = 32

func NewDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"device"},
		Short:   "Manage devices",
		Long:    devicesLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newClaimCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := session.FromCommand(cmd)
			if err != nil {
				return err
			}
			if err := sess.RequireLogin(cmd.Context()); err != nil {
				return err
			}

			devices, err := sess.Cloud.Devices(cmd.Context())
			if err != nil {
				return session.Describe(err)
			}

			writeTable(cmd.OutOrStdout(), devices)
			return nil
		},
	}
}

func writeTable(w io.Writer, devices []particle.Device) {
	if len(devices) == 0 {
		fmt.Fprintf(w, "%s\n", cliui.StepStyle.Render("No devices."))
		return
	}

	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{
			d.ID,
			d.Name,
			onlineLabel(d.Connected),
			strconv.Itoa(d.PlatformID),
			lastHeard(d),
		})
	}

	cliui.Columns(w, []string{"ID", "NAME", "STATUS", "PLATFORM", "LAST HEARD"}, rows, maxCellWidth)
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <device-id>",
		Short: "Show one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.FromCommand(cmd)
			if err != nil {
				return err
			}
			if err := sess.RequireLogin(cmd.Context()); err != nil {
				return err
			}

			device, err := sess.Cloud.Device(cmd.Context(), args[0])
			if err != nil {
				return session.Describe(err)
			}

			rendered, err := cliui.RenderMarkdown(Markdown(device))
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
}

// Markdown renders a device as a markdown document.
func Markdown(d *particle.Device) string {
	var b strings.Builder

	name := d.Name
	if name == "" {
		name = d.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", name)

	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| ID | `%s` |\n", d.ID)
	fmt.Fprintf(&b, "| Status | %s |\n", onlineLabel(d.Connected))
	fmt.Fprintf(&b, "| Platform | %d |\n", d.PlatformID)
	if d.ProductID != 0 {
		fmt.Fprintf(&b, "| Product | %d |\n", d.ProductID)
	}
	fmt.Fprintf(&b, "| Cellular | %t |\n", d.Cellular)
	if d.LastApp != "" {
		fmt.Fprintf(&b, "| Last app | %s |\n", d.LastApp)
	}
	if d.LastIPAddress != "" {
		fmt.Fprintf(&b, "| Last IP | %s |\n", d.LastIPAddress)
	}
	fmt.Fprintf(&b, "| Last heard | %s |\n", lastHeard(*d))

	if len(d.Functions) > 0 {
		b.WriteString("\n## Functions\n\n")
		for _, fn := range d.Functions {
			fmt.Fprintf(&b, "- `%s`\n", fn)
		}
	}

	if len(d.Variables) > 0 {
		b.WriteString("\n## Variables\n\n")
		names := make([]string, 0, len(d.Variables))
		for n := range d.Variables {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(&b, "- `%s` (%s)\n", n, d.Variables[n])
		}
	}

	if d.Notes != "" {
		fmt.Fprintf(&b, "\n## Notes\n\n%s\n", d.Notes)
	}

	return b.String()
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <device-id>",
		Short: "Claim a device for the logged in user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.FromCommand(cmd)
			if err != nil {
				return err
			}
			if err := sess.RequireLogin(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = cliui.Step(out, "Claiming "+args[0], func() error {
				return sess.Cloud.ClaimDevice(cmd.Context(), args[0])
			})
			return session.Describe(err)
		},
	}
}

func onlineLabel(connected bool) string {
	if connected {
		return "online"
	}
	return "offline"
}

func lastHeard(d particle.Device) string {
	if d.LastHeard.IsZero() {
		return "never"
	}
	return d.LastHeard.Local().Format("2006-01-02 15:04:05")
}

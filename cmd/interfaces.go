package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/source"
)

// InterfaceLister is satisfied by every capture source.
type InterfaceLister interface {
	Interfaces() ([]core.Interface, error)
}

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capture devices",
	Long: `
List the devices the configured capture source can open. A failure here usually
means libpcap is missing or the process lacks capture privileges.

Examples:
  pktstream interfaces
  pktstream interfaces -c config.yml
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := source.New(cfg.Capture)
		if err != nil {
			return err
		}
		return runInterfaces(src, cmd.OutOrStdout())
	},
}

func runInterfaces(lister InterfaceLister, w io.Writer) error {
	ifaces, err := lister.Interfaces()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCaptureStart, err)
	}
	if len(ifaces) == 0 {
		return core.ErrNoInterfaces
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESSES\tDESCRIPTION")
	for _, iface := range ifaces {
		addrs := strings.Join(iface.Addresses, ",")
		if addrs == "" {
			addrs = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", iface.Name, addrs, iface.Description)
	}
	return tw.Flush()
}

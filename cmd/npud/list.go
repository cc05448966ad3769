package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"npud/internal/npu"
)

func newListCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the models of the catalog",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			cat, err := buildCatalog(cfg)
			if err != nil {
				return err
			}
			tbl := table.New().
				Border(lipgloss.HiddenBorder()).
				Headers("NAME", "FAMILY", "PARAMS", "CONTEXT", "SIZE", "INSTALLED").
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == table.HeaderRow {
						return headerStyle
					}
					return cellStyle
				})
			for _, m := range cat.Models() {
				size := "-"
				if m.Size > 0 {
					size = humanize.Bytes(uint64(m.Size))
				}
				tbl.Row(m.ID, m.Details.Family, orDash(m.Details.ParameterSize),
					humanize.Comma(int64(m.ContextLength)), size, yesNo(cat.Installed(m)))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return err
		},
	}
}

func newInfoCmd(g *globalOpts) *cobra.Command {
	var devPath, sysRoot string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show accelerator device information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := npuTelemetry(devPath, sysRoot)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device   %s (%d:%d)\n", t.DevicePath, t.Major, t.Minor)
			fmt.Fprintf(out, "vendor   %s\n", orDash(t.Vendor))
			fmt.Fprintf(out, "id       %s\n", orDash(t.DeviceID))
			fmt.Fprintf(out, "driver   %s\n", orDash(t.Driver))
			if t.ClockMHz > 0 {
				fmt.Fprintf(out, "clock    %s\n", humanize.SIWithDigits(float64(t.ClockMHz)*1e6, 2, "Hz"))
			}
			if t.PowerMW > 0 {
				fmt.Fprintf(out, "power    %s\n", humanize.SIWithDigits(float64(t.PowerMW)/1e3, 2, "W"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&devPath, "device", "", "Device node (default "+npu.DefaultDevicePath+")")
	cmd.Flags().StringVar(&sysRoot, "sysfs", "", "sysfs class entry of the device")
	return cmd
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).PaddingRight(2)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// npuTelemetry reads the device snapshot, defaulting to the standard device
// node and its sysfs entry.
func npuTelemetry(devPath, sysRoot string) (npu.Telemetry, error) {
	if devPath == "" {
		devPath = npu.DefaultDevicePath
		if sysRoot == "" {
			sysRoot = npu.DefaultSysfsRoot
		}
	}
	return npu.ReadTelemetry(devPath, sysRoot)
}

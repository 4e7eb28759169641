package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/normanking/meetavatar/internal/config"
	"github.com/normanking/meetavatar/internal/identity"
)

func newIdentityCmd() *cobra.Command {
	var (
		palette []string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "identity <name...>",
		Short: "Print the avatar identity of a display name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(palette) == 0 {
				palette = cfg.Avatar.Palette
			}

			id := identity.NewResolver().Resolve(strings.Join(args, " "), palette)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(id)
			}
			printIdentity(out, id)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&palette, "palette", nil, "colour palette override")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printIdentity(w io.Writer, id identity.Identity) {
	label := id.Initials
	if label == "" {
		label = "?"
	}
	swatch := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 2).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color(id.Color)).
		Render(label)

	fmt.Fprintln(w, swatch)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Initials: %s\n", id.Initials)
	fmt.Fprintf(w, "  Hash:     %s\n", dimStyle.Render(fmt.Sprint(id.Hash)))
	fmt.Fprintf(w, "  Colour:   %s\n", id.Color)

	catalogs := make([]string, 0, len(id.Variants))
	for name := range id.Variants {
		catalogs = append(catalogs, name)
	}
	sort.Strings(catalogs)
	for _, name := range catalogs {
		fmt.Fprintf(w, "  %-9s %s\n", name+":", id.Variants[name])
	}
}

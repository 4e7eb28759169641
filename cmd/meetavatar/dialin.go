package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/normanking/meetavatar/internal/config"
	"github.com/normanking/meetavatar/internal/dialin"
	"github.com/normanking/meetavatar/internal/i18n"
)

func newDialInCmd() *cobra.Command {
	var (
		lang      string
		showTitle bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "dialin <room>",
		Short: "Print the dial-in numbers of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Close()

			if lang == "" {
				lang = cfg.Locale
			}
			client := dialin.NewClient(dialin.ClientConfig{
				ConfCodeURL: cfg.DialIn.ConfCodeURL,
				NumbersURL:  cfg.DialIn.NumbersURL,
				MUCHost:     cfg.DialIn.MUCHost,
				Timeout:     cfg.DialIn.Timeout,
			}, logger.Zerolog())
			svc := dialin.NewService(client, client.Config(), i18n.Default().Translator(lang), logger.Zerolog())

			sum := svc.Load(cmd.Context(), args[0], showTitle)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			if sum.Error != "" {
				fmt.Fprintln(out, errorStyle.Render(sum.Display))
				return nil
			}
			fmt.Fprintln(out, sum.Display)
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "locale for labels (default from config)")
	cmd.Flags().BoolVar(&showTitle, "title", false, "print the room name above the PIN")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

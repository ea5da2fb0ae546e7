package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/lockstep/internal/doctor"
)

var errInvalidConfig = errors.New("configuration invalid")

const redacted = "<redacted>"

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and display configuration",
	}
	cfgCmd.AddCommand(newConfigCheckCmd(opts), newConfigShowCmd(opts))
	return cfgCmd
}

func newConfigCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		jsonOut bool
		probe   bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and optionally probe backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			var probes []doctor.Probe
			if probe {
				probes = backendProbes(cfg)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 4*probeTimeout)
			defer cancel()
			result := doctor.New(cfg, probes...).Validate(ctx)

			out := cmd.OutOrStdout()
			if jsonOut {
				data, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, data)
			} else {
				fmt.Fprint(out, doctor.FormatHuman(result))
			}
			if !result.Valid {
				return errInvalidConfig
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the report as JSON")
	cmd.Flags().BoolVar(&probe, "probe", false, "connect to the configured lock and sink backends")
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			shown := *cfg
			if shown.API.APIKey != "" {
				shown.API.APIKey = redacted
			}
			if shown.Lock.Redis.Password != "" {
				shown.Lock.Redis.Password = redacted
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# source: %s\n# fingerprint: %s\n", cfg.SourceFile, cfg.Fingerprint())
			_, err = out.Write(data)
			return err
		},
	}
}

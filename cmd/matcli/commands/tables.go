package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// TablesCmd lists the tables materialized for a datastack version
var TablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List annotation tables in a datastack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx, cmd)
		if err != nil {
			return err
		}

		tables, err := client.Tables(ctx, callOptions(cmd))
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(tables)
		}

		pterm.Info.Printf("Datastack %s has %d tables\n", client.Datastack(), len(tables))
		for _, table := range tables {
			fmt.Fprintln(cmd.OutOrStdout(), table)
		}
		return nil
	},
}

// VersionsCmd lists the materialization versions of a datastack
var VersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List materialization versions of a datastack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx, cmd)
		if err != nil {
			return err
		}

		versions, err := client.Versions(ctx, nil)
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(versions)
		}

		for _, v := range versions {
			if v == client.Version() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d (most recent)\n", v)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
		}
		return nil
	},
}

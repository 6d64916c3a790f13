package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// CountCmd reports the number of annotations in a table
var CountCmd = &cobra.Command{
	Use:   "count <table>",
	Short: "Count annotations in a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx, cmd)
		if err != nil {
			return err
		}

		count, err := client.AnnotationCount(ctx, args[0], callOptions(cmd))
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int64{"count": count})
		}
		fmt.Fprintln(cmd.OutOrStdout(), count)
		return nil
	},
}

// MetadataCmd shows metadata about a table
var MetadataCmd = &cobra.Command{
	Use:   "metadata <table>",
	Short: "Show metadata about a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx, cmd)
		if err != nil {
			return err
		}

		meta, err := client.TableMetadata(ctx, args[0], callOptions(cmd))
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(meta)
		}

		resolution := make([]string, len(meta.VoxelResolution))
		for i, r := range meta.VoxelResolution {
			resolution[i] = fmt.Sprintf("%g", r)
		}

		data := pterm.TableData{
			{"Table", meta.TableName},
			{"Schema", meta.SchemaType},
			{"Description", meta.Description},
			{"Valid", fmt.Sprintf("%t", meta.Valid)},
			{"Created", meta.Created},
			{"Owner", meta.UserID},
			{"Voxel resolution", strings.Join(resolution, ", ")},
		}
		return pterm.DefaultTable.WithData(data).Render()
	},
}

package commands

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/annoframe/materialize-go/errors"
)

// AnnotationsCmd fetches annotations by ID
var AnnotationsCmd = &cobra.Command{
	Use:   "annotations <table> <id[,id...]>",
	Short: "Fetch annotations from a table by ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ids, err := parseAnnotationIDs(args[1])
		if err != nil {
			return err
		}

		client, err := newClient(ctx, cmd)
		if err != nil {
			return err
		}

		annotations, err := client.Annotations(ctx, args[0], ids, callOptions(cmd))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		if jsonOutput, _ := cmd.Flags().GetBool("json"); !jsonOutput {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(annotations)
	},
}

func parseAnnotationIDs(arg string) ([]uint64, error) {
	parts := strings.Split(arg, ",")
	ids := make([]uint64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, errors.NewInvalidQueryError("invalid annotation ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

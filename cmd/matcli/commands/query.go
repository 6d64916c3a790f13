package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/annoframe/materialize-go/errors"
	"github.com/annoframe/materialize-go/materialize"
)

// QueryCmd runs a filtered query against one or more tables
var QueryCmd = &cobra.Command{
	Use:   "query <table[,table...]>",
	Short: "Query materialized tables with filters",
	Long: `Query materialized tables with filters.

One table runs a simple query; several comma-separated tables run a join
query and require --join with one join column per table.

Filter flags take the form [table.]column=value[,value...] and may be
repeated. Without a table prefix the filter applies to the first table.

Examples:
  matcli query cells --in cell_type=pyramidal,basket --equal brain_region=V1
  matcli query cells,segments --join cell_id,seg_id --out cells.valid=false
  matcli query cells --select id,cell_type --offset 1000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		tables := strings.Split(args[0], ",")
		spec := materialize.QuerySpec{Tables: tables}

		if joinArg, _ := cmd.Flags().GetString("join"); joinArg != "" {
			spec.JoinOn = strings.Split(joinArg, ",")
		}

		var err error
		if inArgs, _ := cmd.Flags().GetStringArray("in"); len(inArgs) > 0 {
			if spec.FilterIn, err = parseFilters(tables[0], inArgs, true); err != nil {
				return err
			}
		}
		if outArgs, _ := cmd.Flags().GetStringArray("out"); len(outArgs) > 0 {
			if spec.FilterOut, err = parseFilters(tables[0], outArgs, true); err != nil {
				return err
			}
		}
		if equalArgs, _ := cmd.Flags().GetStringArray("equal"); len(equalArgs) > 0 {
			if spec.FilterEqual, err = parseFilters(tables[0], equalArgs, false); err != nil {
				return err
			}
		}

		if selectArg, _ := cmd.Flags().GetString("select"); selectArg != "" {
			spec.SelectColumns = strings.Split(selectArg, ",")
		}
		if cmd.Flags().Changed("offset") {
			offset, _ := cmd.Flags().GetInt("offset")
			spec.Offset = &offset
		}

		client, err := newClient(ctx, cmd)
		if err != nil {
			return err
		}
		if version, _ := cmd.Flags().GetUint64("materialization-version"); version != 0 {
			spec.Version = version
		}

		result, err := client.Query(ctx, spec)
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result.Records)
		}
		return renderResult(result)
	},
}

func init() {
	QueryCmd.Flags().String("join", "", "Join column per table, comma-separated (join queries only)")
	QueryCmd.Flags().StringArray("in", nil, "Inclusion filter: [table.]column=value[,value...]")
	QueryCmd.Flags().StringArray("out", nil, "Exclusion filter: [table.]column=value[,value...]")
	QueryCmd.Flags().StringArray("equal", nil, "Equality filter: [table.]column=value")
	QueryCmd.Flags().String("select", "", "Columns to return, comma-separated")
	QueryCmd.Flags().Int("offset", 0, "Result offset for pagination")
}

// parseFilters converts repeated [table.]column=value flags into a
// FilterSet. Set filters take comma-separated value lists; equality
// filters take a single scalar.
func parseFilters(defaultTable string, args []string, valueList bool) (materialize.FilterSet, error) {
	filters := materialize.FilterSet{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" || value == "" {
			return nil, errors.NewInvalidQueryError("malformed filter %q, want [table.]column=value", arg)
		}

		table, column := defaultTable, key
		if t, c, ok := strings.Cut(key, "."); ok {
			table, column = t, c
		}

		if filters[table] == nil {
			filters[table] = map[string]any{}
		}
		if valueList {
			filters[table][column] = strings.Split(value, ",")
		} else {
			filters[table][column] = value
		}
	}
	return filters, nil
}

func renderResult(result *materialize.QueryResult) error {
	if result.Len() == 0 {
		pterm.Info.Println("No rows matched")
		return nil
	}

	columns := result.Columns()
	data := pterm.TableData{columns}
	for _, rec := range result.Records {
		row := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := rec[col]; ok {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		data = append(data, row)
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printf("%d rows\n", result.Len())
	return nil
}

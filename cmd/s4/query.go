package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relatedb/s4"
	"github.com/relatedb/s4/internal/query"
	"github.com/relatedb/s4/internal/sourcepref"
	"github.com/relatedb/s4/internal/value"
)

var (
	fetchKeys []string
	srcPrefs  string
)

var queryCmd = &cobra.Command{
	Use:   "query <condition>",
	Short: "evaluate a condition and print matching entries",
	Long: `query evaluates a condition expression (e.g. 'artist = "Miles Davis"')
and prints, for each matching entry, the entry's identity followed by the
requested --fetch columns in source-preference order.`,
	Args: cobra.ExactArgs(1),
}

func registerQueryCmd() {
	queryCmd.Flags().StringSliceVar(&fetchKeys, "fetch", nil, "keys to project per matched entry")
	queryCmd.Flags().StringVar(&srcPrefs, "src-pref", "*", "comma-separated source preference pattern")
	queryCmd.RunE = runQuery
}

func runQuery(cmd *cobra.Command, args []string) error {
	h, err := openHandle()
	if err != nil {
		return err
	}
	defer h.Close()

	cond, err := s4.CompileCondition(h, args[0])
	if err != nil {
		return fmt.Errorf("s4: parsing condition: %w", err)
	}

	patterns := strings.Split(srcPrefs, ",")
	pref := sourcepref.New(patterns)

	items := []query.FetchItem{{Parent: true}}
	for _, k := range fetchKeys {
		key := h.Pool().InternStr(k)
		items = append(items, query.FetchItem{Key: key, SrcPref: pref, Data: true})
	}
	spec := &s4.FetchSpec{Items: items}

	txn := s4.Begin(h, s4.ReadOnly)
	defer txn.Abort()

	rs := txn.Query(spec, cond)
	for i := 0; i < rs.RowCount(); i++ {
		row, ok := rs.Row(i)
		if !ok {
			continue
		}
		fmt.Println(formatRow(row))
	}
	return nil
}

func formatRow(row *s4.ResultRow) string {
	var parts []string
	for _, col := range row.Cols {
		var vals []string
		for _, tuple := range col {
			vals = append(vals, formatValue(tuple.ValB))
		}
		parts = append(parts, strings.Join(vals, "|"))
	}
	return strings.Join(parts, "\t")
}

func formatValue(v *value.Value) string {
	if v == nil {
		return ""
	}
	if v.IsInt() {
		return fmt.Sprintf("%d", v.GetInt())
	}
	return v.GetStr()
}

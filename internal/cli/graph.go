package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type graphReport struct {
	Bindings []string   `json:"bindings"`
	Order    []string   `json:"order"`
	Levels   [][]string `json:"levels"`
}

func newGraphCommand(a *app) *cobra.Command {
	o := &runOptions{}
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the execution order and levels of a bindings manifest",
		Args:  cobra.NoArgs,
		RunE: a.wrap(func(cmd *cobra.Command, _ []string) error {
			if o.bindings == "" {
				return fmt.Errorf("--bindings is required")
			}
			e, closer, err := a.newEngine(o, nil)
			if err != nil {
				return err
			}
			defer func() {
				_ = closer()
				_ = e.Close()
			}()

			order, err := e.Order()
			if err != nil {
				return err
			}
			levels, err := e.Schedule()
			if err != nil {
				return err
			}
			report := graphReport{Bindings: e.Bindings(), Order: order, Levels: levels}

			if asJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.stdout, string(data))
				return err
			}
			fmt.Fprintf(a.stdout, "order: %s\n", strings.Join(report.Order, " -> "))
			for i, level := range report.Levels {
				fmt.Fprintf(a.stdout, "level %d: %s\n", i, strings.Join(level, ", "))
			}
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "Input document")
	f.StringVarP(&o.schema, "schema", "s", "", "Schema document")
	f.StringVarP(&o.bindings, "bindings", "b", "", "Bindings manifest (YAML)")
	f.BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

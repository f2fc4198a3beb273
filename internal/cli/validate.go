package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/kage/pkg/document"
	"github.com/wehubfusion/kage/pkg/engine"
	"github.com/wehubfusion/kage/pkg/schema"
)

func newValidateCommand(a *app) *cobra.Command {
	var (
		input  string
		schema string
		strict bool
		all    bool
		sets   []string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an input document against a schema",
		Args:  cobra.NoArgs,
		RunE: a.wrap(func(cmd *cobra.Command, _ []string) error {
			raw, err := loadInput(input, sets)
			if err != nil {
				return err
			}
			src, err := schemaSource(schema)
			if err != nil {
				return err
			}
			if all {
				return a.listViolations(raw, src, strict || a.cfg.Strict, input)
			}
			e, err := engine.New(raw, src,
				engine.WithLogger(a.log()),
				engine.WithStrictValidation(strict || a.cfg.Strict))
			if err != nil {
				return err
			}
			defer e.Close()
			_, err = fmt.Fprintf(a.stdout, "%s is valid\n", input)
			return err
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "Input document")
	f.StringVarP(&schema, "schema", "s", "", "Schema document")
	f.BoolVar(&strict, "strict", false, "Reject keys the schema does not declare")
	f.BoolVar(&all, "all", false, "List every violation instead of stopping at the first")
	f.StringArrayVar(&sets, "set", nil, "Override an input value (path=value, repeatable)")
	return cmd
}

// listViolations prints every violation, one per line
func (a *app) listViolations(raw []byte, src document.Source, strict bool, name string) error {
	doc, err := document.ResolveMap(raw)
	if err != nil {
		return err
	}
	result, err := schema.NewEngine(schema.WithStrict(strict)).Report(doc, src)
	if err != nil {
		return err
	}
	if result.Valid {
		_, err = fmt.Fprintf(a.stdout, "%s is valid\n", name)
		return err
	}
	for _, v := range result.Errors {
		fmt.Fprintf(a.stdout, "%s\n", v.Error())
	}
	return fmt.Errorf("%s has %d violation(s)", name, len(result.Errors))
}

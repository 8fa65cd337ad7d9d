package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openfroyo/partsync/pkg/config"
	"github.com/openfroyo/partsync/pkg/schema"
)

func newValidateCommand(_ *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check request files without contacting a controller",
		Long: `Check request files against the request schema and the partition
property table. Unknown and read-only properties and values of the wrong
type are reported. No inventory is needed.`,
		Example: `  partsync validate web.yaml db.cue`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser, err := config.NewParser()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				f, err := parser.Load(path)
				if err == nil {
					if issues := checkProperties(f); len(issues) > 0 {
						err = issues
					}
				}
				if err != nil {
					failed++
					printValidation(out, path, err)
					continue
				}
				fmt.Fprintf(out, "%s: ok (%d partitions)\n", path, len(f.Partitions))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d request files are invalid", failed, len(args))
			}
			return nil
		},
	}
	return cmd
}

func printValidation(w io.Writer, path string, err error) {
	var issues config.ValidationErrors
	if errors.As(err, &issues) {
		for _, issue := range issues {
			if issue.File == "" {
				issue.File = path
			}
			fmt.Fprintln(w, issue.String())
		}
		return
	}
	fmt.Fprintf(w, "%s: %v\n", path, err)
}

// checkProperties applies the property table to every partition of f: each
// name must be known, settable and of the right type. Rules that depend on
// the current state of the partition are left to the reconciler.
func checkProperties(f *config.RequestFile) config.ValidationErrors {
	var issues config.ValidationErrors
	for i, p := range f.Partitions {
		names := make([]string, 0, len(p.Properties))
		for name := range p.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		seen := make(map[schema.PropertyID]string, len(names))
		for _, name := range names {
			path := fmt.Sprintf("partitions.%d.properties.%s", i, name)
			issue := func(format string, args ...interface{}) {
				issues = append(issues, config.ValidationError{
					File:    f.Source,
					Path:    path,
					Message: fmt.Sprintf(format, args...),
				})
			}

			spec, ok := schema.Lookup(name)
			if !ok {
				issue("not a supported partition property")
				continue
			}
			if prev, dup := seen[spec.ID]; dup {
				issue("same property as %q", prev)
				continue
			}
			seen[spec.ID] = name

			if rule, ok := spec.Rule.(schema.ReadOnly); ok {
				if rule.Hint != "" {
					issue("read-only; %s", rule.Hint)
				} else {
					issue("read-only")
				}
				continue
			}
			if _, err := schema.Coerce(spec, p.Properties[name]); err != nil {
				issue("%v", err)
			}
		}
	}
	return issues
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/openfroyo/partsync/pkg/engine"
)

// resultView is the JSON shape of one reconciled partition.
type resultView struct {
	Partition  string            `json:"partition"`
	Changed    bool              `json:"changed"`
	Properties engine.Properties `json:"properties,omitempty"`
	Operations []string          `json:"operations,omitempty"`
	Changes    []engine.Change   `json:"changes,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func viewOf(o outcome, withPlan bool) resultView {
	v := resultView{Partition: o.Request.Target()}
	if o.Err != nil {
		v.Error = o.Err.Error()
		return v
	}
	v.Changed = o.Result.Changed
	v.Properties = o.Result.Properties
	if withPlan && o.Result.Plan != nil {
		for _, op := range o.Result.Plan.Operations() {
			v.Operations = append(v.Operations, string(op))
		}
		v.Changes = o.Result.Plan.Changes
	}
	return v
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcomes renders reconcile results.
func printOutcomes(w io.Writer, outcomes []outcome, asJSON bool) error {
	if asJSON {
		views := make([]resultView, 0, len(outcomes))
		for _, o := range outcomes {
			views = append(views, viewOf(o, false))
		}
		return writeJSON(w, views)
	}

	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(w, "%s: failed: %v\n", o.Request.Target(), o.Err)
		case o.Result.Changed:
			fmt.Fprintf(w, "%s: changed (%s)\n", o.Request.Target(), joinOps(o.Result.Plan))
		default:
			fmt.Fprintf(w, "%s: ok\n", o.Request.Target())
		}
	}
	return nil
}

// printPlans renders check mode results with their operations and changes.
func printPlans(w io.Writer, outcomes []outcome, asJSON bool) error {
	if asJSON {
		views := make([]resultView, 0, len(outcomes))
		for _, o := range outcomes {
			views = append(views, viewOf(o, true))
		}
		return writeJSON(w, views)
	}

	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "%s: cannot plan: %v\n\n", o.Request.Target(), o.Err)
			continue
		}
		plan := o.Result.Plan
		if plan == nil || !plan.Changed() {
			fmt.Fprintf(w, "%s: no changes\n\n", o.Request.Target())
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", o.Request.Target(), joinOps(plan))
		if len(plan.Changes) > 0 {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, c := range plan.Changes {
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Path, formatValue(c.Before), formatValue(c.After))
			}
			_ = tw.Flush()
		}
		fmt.Fprintln(w)
	}
	return nil
}

// printProperties renders a property set sorted by name.
func printProperties(w io.Writer, props engine.Properties, asJSON bool) error {
	if asJSON {
		return writeJSON(w, props)
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%s\n", name, formatValue(props[name]))
	}
	return tw.Flush()
}

func joinOps(plan *engine.Plan) string {
	if plan == nil {
		return ""
	}
	ops := make([]string, 0, len(plan.Steps))
	for _, op := range plan.Operations() {
		ops = append(ops, string(op))
	}
	return strings.Join(ops, ", ")
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case map[string]interface{}, []interface{}, engine.Properties:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

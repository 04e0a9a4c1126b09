package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/buildbuildio/fusion/config"
	"github.com/buildbuildio/fusion/requests"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	OperationName string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan [query-file]",
		Short: "Print the query plan of an operation",
		Long: `Print the query plan of an operation as JSON without executing it.

The operation is read from query-file, or from stdin when no file is given.

Example:
  fusion plan --config ./fusion.yaml ./query.graphql
  echo '{ me { name } }' | fusion plan`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return printPlan(opts, in, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.OperationName, "operation", "", "name of the operation to plan")

	return cmd
}

func printPlan(opts *PlanOptions, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	query, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("unable to read query: %w", err)
	}

	gw, err := newGateway(cfg, zap.NewNop())
	if err != nil {
		return err
	}

	req := &requests.Request{Query: string(query)}
	if opts.OperationName != "" {
		req.OperationName = &opts.OperationName
	}

	plan, err := gw.Plan(req)
	if err != nil {
		return err
	}

	e := json.NewEncoder(out)
	e.SetIndent("", "  ")
	return e.Encode(plan.QueryPlan)
}

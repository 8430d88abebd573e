package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"grandgold-errcache/pkg/client"
)

// operationFlags are shared by every command that addresses one operation.
type operationFlags struct {
	vars string
}

func (f *operationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.vars, "vars", "", `operation variables as a JSON object, e.g. '{"page":1}'`)
}

func (f *operationFlags) operation(name string) (client.Operation, error) {
	vars, err := parseVariables(f.vars)
	if err != nil {
		return client.Operation{}, err
	}
	return client.Operation{Name: name, Variables: vars}, nil
}

func newReportCmd() *cobra.Command {
	var flags operationFlags
	var success bool

	cmd := &cobra.Command{
		Use:     "report OPERATION [MESSAGE]",
		Short:   "Report a failure (or --success) and print the verdict",
		GroupID: GroupRemote,
		Args:    cobra.RangeArgs(1, 2),
		Example: `  errcachectl report GetOrders "Network error" --vars '{"page":1}'
  errcachectl report GetOrders --success`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if success == (len(args) == 2) {
				return fmt.Errorf("give either a MESSAGE or --success")
			}

			op, err := flags.operation(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}

			var message *string
			if !success {
				message = &args[1]
			}

			v, err := c.Report(cmd.Context(), op, message)
			if err != nil {
				return err
			}
			return printJSON(v)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&success, "success", false, "report a successful fetch")
	return cmd
}

func newDismissCmd() *cobra.Command {
	var flags operationFlags

	cmd := &cobra.Command{
		Use:     "dismiss OPERATION",
		Short:   "Dismiss the current error until the next success",
		GroupID: GroupRemote,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := flags.operation(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}

			key, err := c.Dismiss(cmd.Context(), op)
			if err != nil {
				return err
			}
			fmt.Printf("dismissed %s\n", key)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newRetryCmd() *cobra.Command {
	var flags operationFlags
	var check bool

	cmd := &cobra.Command{
		Use:     "retry OPERATION",
		Short:   "Record a retry, or --check whether one is due",
		GroupID: GroupRemote,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := flags.operation(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}

			var advice client.RetryAdvice
			if check {
				advice, err = c.CheckRetry(cmd.Context(), op)
			} else {
				advice, err = c.RecordRetry(cmd.Context(), op)
			}
			if err != nil {
				return err
			}
			return printJSON(advice)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&check, "check", false, "only check, do not record")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var flags operationFlags

	cmd := &cobra.Command{
		Use:     "inspect OPERATION",
		Short:   "Show the cached entry for an operation",
		GroupID: GroupRemote,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := flags.operation(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}

			in, err := c.Inspect(cmd.Context(), op)
			if err != nil {
				return err
			}
			return printJSON(in)
		},
	}

	flags.register(cmd)
	return cmd
}

func newClearCmd() *cobra.Command {
	var flags operationFlags
	var all bool

	cmd := &cobra.Command{
		Use:     "clear [OPERATION]",
		Short:   "Clear one operation's entry, or --all",
		GroupID: GroupRemote,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give either an OPERATION or --all")
			}

			c, err := newClient()
			if err != nil {
				return err
			}

			if all {
				if err := c.ClearAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("cleared all entries")
				return nil
			}

			op, err := flags.operation(args[0])
			if err != nil {
				return err
			}
			key, err := c.Clear(cmd.Context(), op)
			if err != nil {
				return err
			}
			fmt.Printf("cleared %s\n", key)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "clear every entry")
	return cmd
}

func newLogCmd() *cobra.Command {
	var key string
	var limit int

	cmd := &cobra.Command{
		Use:     "log",
		Short:   "List recent suppression decisions",
		GroupID: GroupRemote,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			decisions, err := c.Log(cmd.Context(), key, limit)
			if err != nil {
				return err
			}
			for _, d := range decisions {
				fmt.Printf("%s  %-15s visible=%-5t retries=%d  %s  %s\n",
					d.RecordedAt.Format("2006-01-02 15:04:05"), d.Reason, d.Visible, d.RetryCount, d.Key, d.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "only decisions for this cache key")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of decisions")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stats",
		Short:   "Show server statistics",
		GroupID: GroupRemote,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-overlay/framework/app"
	"github.com/km-arc/go-overlay/framework/container"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Boot the runtime and list its services",
	Long: `Boot every service, print the initialization summary and the
registration table, then shut down.

A critical service failing to initialize makes the command fail after the
table is printed.`,
	RunE: runServices,
}

func init() {
	rootCmd.AddCommand(servicesCmd)
}

func runServices(cmd *cobra.Command, _ []string) error {
	application, err := newApplication(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Shutdown()

	bootErr := application.Boot(cmd.Context())

	out := cmd.OutOrStdout()
	if summary, ok := application.Summary(); ok {
		printSummary(out, summary)
	}
	if err := printRegistrations(out, application); err != nil {
		return err
	}
	return bootErr
}

func printSummary(w io.Writer, s container.InitSummary) {
	fmt.Fprintf(w, "initialized %d, failed %d in %s\n", s.Successful, s.Failed, s.ElapsedTime.Round(time.Millisecond))
	for _, f := range s.Errors {
		fmt.Fprintf(w, "  %s: %v\n", f.ID, f.Err)
	}
	fmt.Fprintln(w)
}

func printRegistrations(w io.Writer, a *app.Application) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSCOPE\tSTATUS\tDEPENDS ON\tTAGS")
	for _, reg := range a.Registrations() {
		scope := "singleton"
		if !reg.Singleton {
			scope = "transient"
		}
		status := "-"
		if st, ok := a.Bus().GetServiceStatus(reg.ID); ok {
			status = string(st.Status)
		}
		if reg.IsCritical() {
			status += " (critical)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			reg.ID, reg.Kind, scope, status, orDash(reg.Dependencies), orDash(reg.Tags))
	}
	return tw.Flush()
}

func orDash(ss []string) string {
	if len(ss) == 0 {
		return "-"
	}
	return strings.Join(ss, ",")
}

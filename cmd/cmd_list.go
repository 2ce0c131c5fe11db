// cmd_list.go - PS Command
// Hauptfunktionen: ListPipelinesHandler, checkServerHeartbeat
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/rocal/api"
)

// checkServerHeartbeat - Prueft ob der Status-Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		return fmt.Errorf("rocal status server not responding - %w", err)
	}
	return nil
}

// humanSince - Kurze Altersangabe fuer die Tabelle
func humanSince(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Less than a minute ago"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	}
	return fmt.Sprintf("%d days ago", int(d.Hours()/24))
}

// renderPipelines - Tabelle der laufenden Pipelines
func renderPipelines(w io.Writer, list []api.PipelineInfo, prefix string, now time.Time) {
	var data [][]string
	for _, p := range list {
		if prefix != "" && !strings.HasPrefix(p.ID, prefix) && !strings.HasPrefix(p.Handle.String(), prefix) {
			continue
		}
		id := runewidth.Truncate(p.ID, 8, "")
		size := "-"
		if p.OutputWidth > 0 {
			size = fmt.Sprintf("%dx%d", p.OutputWidth, p.OutputHeight)
		}
		data = append(data, []string{
			p.Handle.String(),
			id,
			p.State,
			p.Status,
			strconv.Itoa(p.BatchSize),
			size,
			strconv.Itoa(p.Remaining),
			humanSince(p.CreatedAt, now),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"HANDLE", "ID", "STATE", "STATUS", "BATCH", "OUTPUT", "REMAINING", "CREATED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// ListPipelinesHandler - Listet die Pipelines des laufenden Status-Servers
func ListPipelinesHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.List(cmd.Context())
	if err != nil {
		return err
	}

	var prefix string
	if len(args) > 0 {
		prefix = args[0]
	}
	renderPipelines(os.Stdout, resp.Pipelines, prefix, time.Now())
	return nil
}

// newPsCmd - Erstellt den ps Command
func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ps [HANDLE|ID]",
		Short:   "List pipelines of a running status server",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ListPipelinesHandler,
	}
}

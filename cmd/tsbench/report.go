package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/vjranagit/tscore/pkg/types"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	headColor = color.New(color.FgCyan, color.Bold)
)

// printStages renders the stage table followed by a one-line summary
func printStages(w io.Writer, stages []stage, total time.Duration) error {
	table := tablewriter.NewWriter(w)

	headers := []string{"Stage", "Method", "In", "Out", "Filled", "NaN", "Millis", "Status", "Note"}
	table.Header(headers)

	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	failed := 0
	for _, st := range stages {
		status := okColor.Sprint("ok")
		note := st.Note
		if st.Err != nil {
			failed++
			kind := "error"
			if k := types.KindOf(st.Err); k != 0 {
				kind = k.String()
			}
			status = failColor.Sprint(kind)
			note = st.Err.Error()
		}
		data = append(data, []string{
			st.Name,
			st.Method,
			strconv.Itoa(st.In),
			strconv.Itoa(st.Out),
			strconv.Itoa(st.Filled),
			strconv.Itoa(st.NaN),
			strconv.FormatFloat(float64(st.Duration.Microseconds())/1000, 'f', 3, 64),
			status,
			note,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := headColor.Fprintf(w, "%d stages, %d failed, %v total\n", len(stages), failed, total.Round(time.Microsecond))
	return err
}

func printLineage(w io.Writer, series, edges int) {
	fmt.Fprintf(w, "lineage graph: %d series, %d derivation edges\n", series, edges)
}

// Package cli renders command results for the colindex CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperjump/colindex/internal/extract"
	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/upload"
	"github.com/hyperjump/colindex/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" and "json"; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q (want text or json)", models.ErrConfiguration, s)
	}
}

const snippetLen = 200

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search response in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %s in %dms\n\n", response.Total, response.Collection, response.QueryTime)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
	return nil
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f | ID: %s\n", result.Rank, result.Score, result.Reference)
	if len(result.Payload) == 0 {
		fmt.Fprintln(w)
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(result.Payload, &payload); err != nil {
		fmt.Fprintf(w, "%s\n\n", utils.Truncate(string(result.Payload), snippetLen))
		return
	}
	if src, ok := payload[extract.KeySourcePath].(string); ok {
		fmt.Fprintf(w, "Source: %s", src)
		if page, ok := payload[extract.KeyPageNumber].(float64); ok {
			fmt.Fprintf(w, " (page %d)", int(page))
		}
		fmt.Fprintln(w)
	}
	if text, ok := payload[extract.KeyText].(string); ok {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(utils.SingleLine(text), snippetLen))
	} else {
		compact, _ := json.Marshal(payload)
		fmt.Fprintf(w, "Payload: %s\n", utils.Truncate(string(compact), snippetLen))
	}
	fmt.Fprintln(w)
}

// WriteCollections writes a collection listing.
func WriteCollections(w io.Writer, infos []*models.CollectionInfo, format OutputFormat) error {
	if format == OutputJSON {
		if infos == nil {
			infos = []*models.CollectionInfo{}
		}
		return writeJSON(w, infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "No collections")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDIMENSIONS\tMETRIC\tLAYOUT\tQUANTIZATION\tPOINTS")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\n",
			info.Name, info.Dimensions, info.Metric, info.Layout, quantization(info), info.PointsCount)
	}
	return tw.Flush()
}

// WriteCollectionInfo writes one collection's configuration and statistics.
func WriteCollectionInfo(w io.Writer, info *models.CollectionInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", info.Name)
	fmt.Fprintf(tw, "Dimensions:\t%d\n", info.Dimensions)
	fmt.Fprintf(tw, "Metric:\t%s\n", info.Metric)
	fmt.Fprintf(tw, "Layout:\t%s\n", info.Layout)
	fmt.Fprintf(tw, "Quantization:\t%s\n", quantization(info))
	fmt.Fprintf(tw, "Points:\t%d\n", info.PointsCount)
	if !info.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "Created:\t%s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func quantization(info *models.CollectionInfo) string {
	if !info.Quantization.Enabled() {
		return "none"
	}
	return fmt.Sprintf("%s (x%d)", info.Quantization.Type, info.Quantization.Multiplier())
}

// WriteStatus writes the service status report.
func WriteStatus(w io.Writer, status *models.ServiceStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	if status.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", status.Version)
	}
	if status.DatabasePath != "" {
		fmt.Fprintf(w, "Database: %s\n", status.DatabasePath)
	}
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(status.DiskUsageBytes))
	fmt.Fprintf(w, "Collections: %d\n", len(status.Collections))
	fmt.Fprintf(w, "Points: %d\n", status.Points)
	if len(status.WatchDirectories) > 0 {
		fmt.Fprintf(w, "Watching: %s\n", strings.Join(status.WatchDirectories, ", "))
	}
	return nil
}

// WriteUploadReport writes an upload summary, listing every failed batch.
func WriteUploadReport(w io.Writer, report *upload.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Uploaded %d records in %d/%d batches (%s)\n",
		report.Records, report.Succeeded, report.Total, report.Elapsed.Round(time.Millisecond))
	if report.Unscheduled > 0 {
		fmt.Fprintf(w, "Not submitted: %d records\n", report.Unscheduled)
	}
	if report.Canceled {
		fmt.Fprintln(w, "Upload was canceled")
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "Batch %d failed after %d attempts (%d records): %v\n", f.Seq, f.Attempts, len(f.IDs), f.Err)
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

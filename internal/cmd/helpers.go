package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/NamanBalaji/updater/internal/api"
	"github.com/NamanBalaji/updater/internal/config"
	"github.com/NamanBalaji/updater/internal/mirror"
	"github.com/NamanBalaji/updater/internal/update"
)

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.GetConfigFrom(configPath)
	}

	return config.GetConfig()
}

func newClient() (*api.Client, error) {
	addr := serverAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}

		addr = cfg.ListenAddr
	}

	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	return api.NewClient(addr), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func printUpdates(w io.Writer, updates []*update.Update) error {
	if outputFormat == "json" {
		return printJSON(w, updates)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tSTATUS\tPROGRESS\tONLINE")

	for _, u := range updates {
		progress := fmt.Sprintf("%d%%", u.Progress)
		if u.Speed > 0 {
			progress += fmt.Sprintf(" %s/s eta %s", formatBytes(u.Speed), u.ETA.Round(time.Second))
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", u.DownloadID, u.Name, u.Version, u.Status, progress, u.AvailableOnline)
	}

	return tw.Flush()
}

func printUpdate(w io.Writer, u *update.Update) error {
	if outputFormat == "json" {
		return printJSON(w, u)
	}

	return printUpdates(w, []*update.Update{u})
}

func printMirrors(w io.Writer, set mirror.Set) error {
	if outputFormat == "json" {
		return printJSON(w, set)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tLATENCY\tURL")

	for _, m := range set.Mirrors {
		latency := "-"
		if m.Latency > 0 {
			latency = m.Latency.Round(time.Millisecond).String()
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Label, latency, m.URL)
	}

	if set.Fallback {
		fmt.Fprintln(tw, "(no mirrors listed, using the feed URL)")
	}

	return tw.Flush()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func readFeed(path string) ([]update.Info, error) {
	var r io.Reader = os.Stdin

	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		r = f
	}

	var req api.SubmitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", path, err)
	}

	return req.Updates, nil
}

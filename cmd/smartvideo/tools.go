package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/platform"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and manage the ffmpeg and ffprobe binaries",
}

var toolsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where each tool currently resolves from",
	Long: `Show where each tool currently resolves from.

Status checks the override, the system PATH, packaged directories, and
the local cache. It never downloads; a tool that would only be available
by download shows as unavailable here.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, settings, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := newRegistry(cfg, settings)
		if err != nil {
			return err
		}

		statuses := reg.Statuses(cmd.Context())
		if jsonFlag {
			printJSON(statusReport(reg.Key(), statuses))
			return nil
		}
		fmt.Println(renderTable(
			[]string{"TOOL", "STATE", "SOURCE", "VERSION", "DETAIL"},
			statusRows(statuses),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
		))
		return nil
	},
}

var toolsEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Resolve every tool now, downloading if necessary",
	Long: `Resolve every tool now, downloading if necessary.

Run this once after installation to pay the download cost up front, or
in provisioning scripts so the server starts with warm binaries.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, settings, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		reg, err := newRegistry(cfg, settings)
		if err != nil {
			return err
		}

		printInfof("Resolving tools for %s...\n", reg.Key())
		outs, err := reg.ResolveAll(cmd.Context())
		if err != nil {
			return err
		}

		if jsonFlag {
			printJSON(outcomeReport(reg.Key(), outs))
			return nil
		}
		for _, out := range outs {
			version := out.Version
			if version == "" {
				version = "?"
			}
			printInfof("  %-8s %-10s via %-8s %s\n", out.Tool, version, out.Tier, out.Path)
		}
		return nil
	},
}

var toolsInvalidateCmd = &cobra.Command{
	Use:   "invalidate [tool...]",
	Short: "Drop cached binaries so the next use re-acquires them",
	Long: `Drop cached binaries so the next use re-acquires them.

With no arguments every tool's cache entry is removed. Binaries found on
the PATH or via overrides are not touched; only the download cache is.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, settings, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := newRegistry(cfg, settings)
		if err != nil {
			return err
		}

		known := reg.Tools()
		names := args
		if len(names) == 0 {
			names = known
		}
		for _, name := range names {
			found := false
			for _, k := range known {
				if k == name {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("unknown tool %q (choose from %s)", name, strings.Join(known, ", "))
			}
		}

		for _, name := range names {
			if err := reg.InvalidateCache(name); err != nil {
				return fmt.Errorf("invalidating %s: %w", name, err)
			}
			printInfof("Invalidated %s\n", name)
		}
		return nil
	},
}

type toolStatusJSON struct {
	Tool      string `json:"tool"`
	Available bool   `json:"available"`
	Tier      string `json:"tier,omitempty"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

type statusReportJSON struct {
	Platform string           `json:"platform"`
	Tools    []toolStatusJSON `json:"tools"`
}

func statusReport(key platform.Key, statuses []bintool.Status) statusReportJSON {
	report := statusReportJSON{Platform: string(key), Tools: make([]toolStatusJSON, 0, len(statuses))}
	for _, st := range statuses {
		ts := toolStatusJSON{Tool: st.Tool}
		if st.Outcome != nil {
			ts.Available = true
			ts.Tier = st.Outcome.Tier.String()
			ts.Path = st.Outcome.Path
			ts.Version = st.Outcome.Version
		}
		if st.Err != nil {
			ts.Error = st.Err.Error()
		}
		report.Tools = append(report.Tools, ts)
	}
	return report
}

func outcomeReport(key platform.Key, outs []bintool.Outcome) statusReportJSON {
	report := statusReportJSON{Platform: string(key), Tools: make([]toolStatusJSON, 0, len(outs))}
	for _, out := range outs {
		report.Tools = append(report.Tools, toolStatusJSON{
			Tool:      out.Tool,
			Available: true,
			Tier:      out.Tier.String(),
			Path:      out.Path,
			Version:   out.Version,
		})
	}
	return report
}

func statusRows(statuses []bintool.Status) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		if st.Outcome != nil {
			version := st.Outcome.Version
			if version == "" {
				version = "?"
			}
			rows = append(rows, []string{st.Tool, "available", st.Outcome.Tier.String(), version, st.Outcome.Path})
			continue
		}
		detail := ""
		if st.Err != nil {
			detail = firstStatusLine(st.Err.Error())
		}
		rows = append(rows, []string{st.Tool, "unavailable", "", "", detail})
	}
	return rows
}

// firstStatusLine keeps multi-line resolution errors to one table cell.
func firstStatusLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	toolsCmd.AddCommand(toolsStatusCmd)
	toolsCmd.AddCommand(toolsEnsureCmd)
	toolsCmd.AddCommand(toolsInvalidateCmd)
	rootCmd.AddCommand(toolsCmd)
}

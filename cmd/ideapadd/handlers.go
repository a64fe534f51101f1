package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/ideapadd/internal/app"
	"github.com/dokzlo13/ideapadd/internal/config"
	"github.com/dokzlo13/ideapadd/internal/ledger"
	"github.com/dokzlo13/ideapadd/internal/profile"
	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

// load reads the configuration. The default path may be missing.
func (c *cli) load() error {
	cfg, err := config.Load(c.configPath, c.configPath == defaultConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c.cfg = cfg
	setupLogging(cfg.Log.Level, cfg.Log.UseJSON, cfg.Log.Colors)
	return nil
}

func (c *cli) services() (*app.Services, error) {
	services, err := app.NewServices(c.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return services, nil
}

func runStatus(cmd *cobra.Command, c *cli, asJSON, cached bool) error {
	services, err := c.services()
	if err != nil {
		return err
	}
	defer services.Close()

	var view reconcile.SessionView
	if cached {
		var ok bool
		view, ok, err = services.Snapshot.Last()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no stored state yet, run without --cached")
		}
	} else {
		view = services.Firmware.Orchestrator.Reload(cmd.Context()).View()
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), view)
	}
	printSession(cmd.OutOrStdout(), view)
	return nil
}

func printSession(out io.Writer, view reconcile.SessionView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, s := range view.Settings {
		fmt.Fprintf(w, "%s:\t%s\n", s.Title, s.Description)
	}
	w.Flush()
}

// parseAssignments turns "key=value" arguments into a map.
func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected SETTING=VALUE", arg)
		}
		values[key] = value
	}
	return values, nil
}

func runSet(cmd *cobra.Command, c *cli, args []string, dryRun bool) error {
	values, err := parseAssignments(args)
	if err != nil {
		return err
	}
	req, err := reconcile.ParseRequest(values)
	if err != nil {
		return err
	}

	services, err := c.services()
	if err != nil {
		return err
	}
	defer services.Close()

	out := cmd.OutOrStdout()
	orch := services.Firmware.Orchestrator

	if dryRun {
		var commands []string
		orch.Do(func(r *reconcile.Reconciler) {
			session := r.Reload(cmd.Context())
			commands, err = r.Preview(session.Baseline().Merge(req))
		})
		if err != nil {
			return err
		}
		if len(commands) == 0 {
			fmt.Fprintln(out, "No changes")
		}
		for _, line := range commands {
			fmt.Fprintln(out, line)
		}
		return nil
	}

	res, err := orch.Apply(cmd.Context(), req, "cli", "", true)
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return res.Err()
}

func printResult(cmd *cobra.Command, res reconcile.SaveResult) {
	for _, s := range res.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipped %s: current state unknown\n", s.Title())
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
}

func runProfileList(cmd *cobra.Command, c *cli) error {
	if c.cfg.Script == "" {
		return fmt.Errorf("no profile script configured (set \"script\" in %s)", c.configPath)
	}
	runtime := profile.NewRuntime()
	defer runtime.Close()
	if err := runtime.LoadFile(c.cfg.Script); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, p := range runtime.Profiles() {
		parts := make([]string, 0, len(p.Values))
		for _, key := range p.Keys() {
			parts = append(parts, key+"="+p.Values[key])
		}
		fmt.Fprintf(w, "%s\t%s\n", p.Name, strings.Join(parts, " "))
	}
	return w.Flush()
}

func runProfileApply(cmd *cobra.Command, c *cli, name string) error {
	if c.cfg.Script == "" {
		return fmt.Errorf("no profile script configured (set \"script\" in %s)", c.configPath)
	}
	services, err := c.services()
	if err != nil {
		return err
	}
	defer services.Close()

	if err := services.Profiles.LoadScript(); err != nil {
		return err
	}
	res, err := services.Profiles.ApplyProfile(cmd.Context(), name, "cli")
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return res.Err()
}

func runHistory(cmd *cobra.Command, c *cli, limit int, asJSON bool) error {
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	services, err := c.services()
	if err != nil {
		return err
	}
	defer services.Close()

	entries, err := services.Ledger.Recent(limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	printHistory(cmd.OutOrStdout(), entries)
	return nil
}

func printHistory(out io.Writer, entries []*ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tSETTING\tSOURCE\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.EventType, dash(e.Setting), dash(e.Source), details(e.Payload))
	}
	w.Flush()
}

func details(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == "command" || k == "save_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, " ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(c *cli, resetState bool) error {
	log.Info().Str("config", c.configPath).Msg("Starting ideapadd")

	application, err := app.New(c.cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if resetState {
		log.Info().Msg("Clearing stored state (--reset-state)")
		if err := application.ClearState(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear stored state")
		}
	}

	ctx := app.SignalContext()
	if err := application.Start(ctx); err != nil {
		application.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	application.Wait()

	return application.Stop()
}

// routectl evaluates placement decisions and checks narrative templates offline.
//
// Usage:
//
//	routectl decide --privacy deidentified --sla-ms 40 --tier tiny
//	routectl explain --context task.yaml
//	routectl templates check --dir templates
//	routectl narrate --modality oct --step capture_left --progress 40
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/upb/tier-router/internal/narrative"
	"github.com/upb/tier-router/internal/observability"
	"github.com/upb/tier-router/internal/placement"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "routectl",
		Usage:   "Inspect tier placement decisions and narrative templates",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print machine-readable JSON",
			},
		},
		Commands: []*cli.Command{
			decideCommand(),
			explainCommand(),
			defaultsCommand(),
			gatesCommand(),
			templatesCommand(),
			narrateCommand(),
		},
	}
}

// =============================================================================
// PLACEMENT
// =============================================================================

func contextFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "context", Aliases: []string{"c"}, Usage: "YAML or JSON file overriding the default task context"},
		&cli.Float64Flag{Name: "sla-ms", Usage: "Latency budget in milliseconds"},
		&cli.StringFlag{Name: "payload", Usage: "Payload type (raw_image, features, metrics)"},
		&cli.StringFlag{Name: "privacy", Usage: "Privacy ring (phi_raw, phi_masked, deidentified)"},
		&cli.StringFlag{Name: "tier", Usage: "Model tier (tiny, small, medium, large)"},
		&cli.Float64Flag{Name: "model-vram", Usage: "Model VRAM requirement in GB"},
		&cli.Float64Flag{Name: "edge-vram", Usage: "Edge device VRAM in GB"},
		&cli.Float64Flag{Name: "ws-vram", Usage: "Workstation VRAM in GB"},
		&cli.Float64Flag{Name: "uplink", Usage: "Uplink bandwidth in Mbps"},
		&cli.Float64Flag{Name: "jitter", Usage: "Network jitter in ms"},
		&cli.Float64Flag{Name: "budget", Usage: "Daily cloud budget in USD"},
		&cli.Float64Flag{Name: "spent", Usage: "Cloud spend so far today in USD"},
	}
}

// taskContext starts from the default fixture, overlays --context, then individual flags.
func taskContext(c *cli.Context) (placement.TaskContext, error) {
	tc := placement.DefaultContext()

	if path := c.String("context"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return tc, fmt.Errorf("failed to read context file: %w", err)
		}
		defer f.Close()

		// JSON is a subset of YAML, so one decoder serves both.
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&tc); err != nil && !errors.Is(err, io.EOF) {
			return tc, fmt.Errorf("failed to parse context file %s: %w", path, err)
		}
	}

	floats := map[string]*float64{
		"sla-ms":     &tc.SLAMs,
		"model-vram": &tc.Model.VRAMGB,
		"edge-vram":  &tc.VRAMs.EdgeGB,
		"ws-vram":    &tc.VRAMs.WorkstationGB,
		"uplink":     &tc.UplinkMbps,
		"jitter":     &tc.JitterMs,
		"budget":     &tc.Cost.DailyBudgetUSD,
		"spent":      &tc.Cost.SpentUSD,
	}
	for name, dst := range floats {
		if c.IsSet(name) {
			*dst = c.Float64(name)
		}
	}

	if c.IsSet("payload") {
		p, err := placement.ParsePayloadType(c.String("payload"))
		if err != nil {
			return tc, err
		}
		tc.PayloadType = p
	}
	if c.IsSet("privacy") {
		p, err := placement.ParsePrivacy(c.String("privacy"))
		if err != nil {
			return tc, err
		}
		tc.Privacy = p
	}
	if c.IsSet("tier") {
		m, err := placement.ParseModelTier(c.String("tier"))
		if err != nil {
			return tc, err
		}
		tc.Model.Tier = m
	}

	return placement.Validate(tc)
}

type decisionOutput struct {
	Target       placement.Target       `json:"target"`
	Gate         placement.GateID       `json:"gate"`
	GateLabel    string                 `json:"gateLabel"`
	Explanation  string                 `json:"explanation"`
	PrivacyBadge narrative.PrivacyBadge `json:"privacyBadge"`
}

func decideCommand() *cli.Command {
	return &cli.Command{
		Name:  "decide",
		Usage: "Route a task context to edge, workstation or cloud",
		Flags: contextFlags(),
		Action: func(c *cli.Context) error {
			tc, err := taskContext(c)
			if err != nil {
				return err
			}
			v := placement.Evaluate(tc)
			out := decisionOutput{
				Target:       v.Target,
				Gate:         v.Gate,
				GateLabel:    v.Gate.Label(),
				Explanation:  v.Explain(tc),
				PrivacyBadge: narrative.BadgeForTarget(v.Target),
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, out)
			}
			fmt.Fprintf(c.App.Writer, "target:  %s\n", out.Target)
			fmt.Fprintf(c.App.Writer, "gate:    %s (%s)\n", out.Gate, out.GateLabel)
			fmt.Fprintf(c.App.Writer, "badge:   %s\n", out.PrivacyBadge)
			fmt.Fprintf(c.App.Writer, "reason:  %s\n", out.Explanation)
			return nil
		},
	}
}

func explainCommand() *cli.Command {
	return &cli.Command{
		Name:  "explain",
		Usage: "Print the one-line routing explanation for a task context",
		Flags: contextFlags(),
		Action: func(c *cli.Context) error {
			tc, err := taskContext(c)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				v := placement.Evaluate(tc)
				return writeJSON(c.App.Writer, map[string]string{
					"target":      string(v.Target),
					"gate":        string(v.Gate),
					"explanation": v.Explain(tc),
				})
			}
			fmt.Fprintln(c.App.Writer, placement.Explain(tc))
			return nil
		},
	}
}

func defaultsCommand() *cli.Command {
	return &cli.Command{
		Name:  "defaults",
		Usage: "Print the default task context",
		Action: func(c *cli.Context) error {
			tc := placement.DefaultContext()
			if c.Bool("json") {
				return writeJSON(c.App.Writer, tc)
			}
			enc := yaml.NewEncoder(c.App.Writer)
			enc.SetIndent(2)
			if err := enc.Encode(tc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func gatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "gates",
		Usage: "List the routing gates in evaluation order",
		Action: func(c *cli.Context) error {
			gates := placement.Gates()
			if c.Bool("json") {
				return writeJSON(c.App.Writer, gates)
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tGATE\tLABEL\tOUTCOME")
			for _, g := range gates {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", g.Order, g.ID, g.Label, g.Outcome)
			}
			return tw.Flush()
		},
	}
}

// =============================================================================
// NARRATIVE
// =============================================================================

func templateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "dir",
			Value:   "templates",
			Usage:   "Narrative templates directory",
			EnvVars: []string{"TEMPLATES_DIR"},
		},
		&cli.StringFlag{
			Name:  "lang",
			Value: "en",
			Usage: "Template language",
		},
	}
}

func newLoader(c *cli.Context) (*narrative.Loader, error) {
	logger, err := observability.NewLogger(c.String("log-level"), observability.FormatConsole)
	if err != nil {
		return nil, err
	}
	return narrative.NewLoader(c.String("dir"), c.String("lang"), narrative.NewTemplateCache(16, 0), logger), nil
}

type templateReport struct {
	Modality string `json:"modality"`
	Version  string `json:"version,omitempty"`
	Steps    int    `json:"steps,omitempty"`
	Error    string `json:"error,omitempty"`
}

func templatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "templates",
		Usage: "Narrative template tools",
		Subcommands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Load and validate every template in a directory",
				Flags: templateFlags(),
				Action: func(c *cli.Context) error {
					loader, err := newLoader(c)
					if err != nil {
						return err
					}
					modalities, err := loader.Modalities()
					if err != nil {
						return err
					}
					if len(modalities) == 0 {
						return fmt.Errorf("no templates found in %s", c.String("dir"))
					}

					reports := make([]templateReport, 0, len(modalities))
					failed := 0
					for _, m := range modalities {
						r := templateReport{Modality: m}
						tpl, err := loader.Load(m, c.String("lang"))
						if err != nil {
							r.Error = err.Error()
							failed++
						} else {
							r.Version, r.Steps = tpl.Version, len(tpl.Steps)
						}
						reports = append(reports, r)
					}

					if c.Bool("json") {
						if err := writeJSON(c.App.Writer, reports); err != nil {
							return err
						}
					} else {
						for _, r := range reports {
							if r.Error != "" {
								fmt.Fprintf(c.App.Writer, "FAIL  %s: %s\n", r.Modality, r.Error)
								continue
							}
							fmt.Fprintf(c.App.Writer, "ok    %s v%s (%d steps)\n", r.Modality, r.Version, r.Steps)
						}
					}
					if failed > 0 {
						return fmt.Errorf("%d of %d templates failed", failed, len(reports))
					}
					return nil
				},
			},
			{
				Name:  "steps",
				Usage: "List the steps a modality template defines",
				Flags: append(templateFlags(), &cli.StringFlag{
					Name: "modality", Aliases: []string{"m"}, Value: "oct", Usage: "Modality",
				}),
				Action: func(c *cli.Context) error {
					loader, err := newLoader(c)
					if err != nil {
						return err
					}
					tpl, err := loader.Load(c.String("modality"), c.String("lang"))
					if err != nil {
						return err
					}
					steps := make([]string, 0, len(tpl.Steps))
					for id := range tpl.Steps {
						steps = append(steps, id)
					}
					sort.Strings(steps)
					if c.Bool("json") {
						return writeJSON(c.App.Writer, steps)
					}
					for _, id := range steps {
						fmt.Fprintf(c.App.Writer, "%-20s %s\n", id, narrative.HumanizeStep(id))
					}
					return nil
				},
			},
		},
	}
}

func narrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "narrate",
		Usage: "Render one workflow event as patient-facing narrative",
		Flags: append(templateFlags(),
			&cli.StringFlag{Name: "modality", Aliases: []string{"m"}, Value: "oct", Usage: "Modality"},
			&cli.StringFlag{Name: "step", Aliases: []string{"s"}, Required: true, Usage: "Workflow step id"},
			&cli.IntFlag{Name: "progress", Aliases: []string{"p"}, Usage: "Progress percentage (0-100)"},
			&cli.StringFlag{Name: "privacy", Usage: "Privacy badge override"},
		),
		Action: func(c *cli.Context) error {
			ev := narrative.WorkflowEvent{Step: c.String("step")}
			if c.IsSet("progress") {
				p := c.Int("progress")
				if p < 0 || p > 100 {
					return fmt.Errorf("progress must be between 0 and 100")
				}
				ev.Progress = &p
			}
			if c.IsSet("privacy") {
				if err := ev.Privacy.UnmarshalText([]byte(c.String("privacy"))); err != nil {
					return err
				}
			}

			loader, err := newLoader(c)
			if err != nil {
				return err
			}
			tpl, err := loader.Load(c.String("modality"), c.String("lang"))
			if err != nil {
				return err
			}
			out, err := narrative.ToNarrative(ev, tpl)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, out)
			}
			w := c.App.Writer
			fmt.Fprintf(w, "%s  %s [%d%%]\n", out.Icon, out.PlainText, out.Progress)
			if out.Why != "" {
				fmt.Fprintf(w, "why:     %s\n", out.Why)
			}
			if out.DoNow != "" {
				fmt.Fprintf(w, "do now:  %s\n", out.DoNow)
			}
			if out.ETAHint != "" {
				fmt.Fprintf(w, "eta:     %s\n", out.ETAHint)
			}
			if out.Alert != "" {
				fmt.Fprintf(w, "alert:   %s\n", out.Alert)
			}
			fmt.Fprintf(w, "privacy: %s (%s)\n", narrative.BadgeLabel(string(out.PrivacyBadge)), out.PrivacyBadge)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

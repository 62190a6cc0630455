package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chriseon/relay/internal/events"
	"github.com/chriseon/relay/internal/models"
	"github.com/chriseon/relay/internal/orchestration"
	"github.com/chriseon/relay/internal/utils"
)

func newRunCommand() *cobra.Command {
	var (
		modelA       string
		modelB       string
		modelC       string
		length       string
		instructions string
		jsonOutput   bool
		showStages   bool
	)

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run a query through the three-stage pipeline",
		Long: `Run a query through the three-stage pipeline and print the final
synthesized answer.

Each stage takes a "provider:model" reference, for example
openai:gpt-4o-mini or anthropic:claude-sonnet-4-5.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(".")
			if err != nil {
				return err
			}
			defer eng.close()

			run, err := orchestration.NewRun(args[0], map[models.Slot]string{
				models.SlotA: modelA,
				models.SlotB: modelB,
				models.SlotC: modelC,
			}, models.GenOptions{
				OutputLength: models.NormalizeOutputLength(length),
				Instructions: instructions,
			})
			if err != nil {
				return err
			}
			if err := eng.store.CreateRun(ctx, run); err != nil {
				return err
			}

			// Surface stage progress on stderr while the pipeline runs.
			ch, cancel := eng.bus.Subscribe(run.ID.String(), 0)
			defer cancel()
			progressDone := make(chan struct{})
			go func() {
				defer close(progressDone)
				for e := range ch {
					utils.EventToSlog(e)
					switch e.Type {
					case events.ArtifactStarted:
						fmt.Fprintf(os.Stderr, "pass %d: invoking %v\n", e.PassIndex, e.Payload["model"])
					case events.ArtifactError:
						fmt.Fprintf(os.Stderr, "pass %d: error: %v\n", e.PassIndex, e.Payload["error"])
					case events.ArtifactCreated:
						fmt.Fprintf(os.Stderr, "pass %d: done (%v chars)\n", e.PassIndex, e.Payload["chars"])
					}
				}
			}()

			if err := eng.orch.Execute(ctx, run.ID); err != nil {
				return err
			}
			<-progressDone

			final, err := eng.store.GetRun(ctx, run.ID)
			if err != nil {
				return err
			}
			artifacts, err := eng.store.ArtifactsForRun(ctx, run.ID)
			if err != nil {
				return err
			}
			scores, err := eng.store.ScoresForRun(ctx, run.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"run":       final,
					"artifacts": artifacts,
					"scores":    scores,
				}); err != nil {
					return err
				}
			} else {
				printRunResult(final, artifacts, scores, showStages)
			}

			if final.Status == models.StatusFailed {
				msg := "run failed"
				if final.Error != nil {
					msg = *final.Error
				}
				return &RunFailedError{Message: msg}
			}
			if n := len(artifacts); n == 0 || !artifacts[n-1].Usable() {
				msg := "pipeline produced no usable final output"
				if n > 0 && artifacts[n-1].Errored() {
					msg = *artifacts[n-1].Error
				}
				return &RunFailedError{Message: msg}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelA, "model-a", "", "Draft stage model (provider:model)")
	cmd.Flags().StringVar(&modelB, "model-b", "", "Refine stage model (provider:model)")
	cmd.Flags().StringVar(&modelC, "model-c", "", "Synthesis stage model (provider:model)")
	cmd.Flags().StringVar(&length, "length", "standard", "Output length: brief, standard, or comprehensive")
	cmd.Flags().StringVar(&instructions, "instructions", "", "System instructions applied to every stage")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full run as JSON")
	cmd.Flags().BoolVar(&showStages, "show-stages", false, "Print intermediate stage outputs")
	_ = cmd.MarkFlagRequired("model-a")
	_ = cmd.MarkFlagRequired("model-b")
	_ = cmd.MarkFlagRequired("model-c")

	return cmd
}

func printRunResult(run *models.Run, artifacts []*models.Artifact, scores []*models.Score, showStages bool) {
	scoreByArtifact := make(map[string]*models.Score, len(scores))
	for _, s := range scores {
		scoreByArtifact[s.ArtifactID.String()] = s
	}

	var final *models.Artifact
	for _, a := range artifacts {
		if showStages && a.PassIndex < len(artifacts) {
			fmt.Fprintf(os.Stderr, "--- pass %d (%s, %s) ---\n", a.PassIndex, a.Role, a.ModelID)
			if a.Errored() {
				fmt.Fprintf(os.Stderr, "error: %s\n\n", *a.Error)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n\n", a.OutputText)
			}
		}
		final = a
	}

	if final != nil && final.Usable() {
		fmt.Println(strings.TrimSpace(final.OutputText))
	}

	fmt.Fprintf(os.Stderr, "\nstatus: %s  tokens: %d\n", run.Status, run.TotalUsage.Total())
	if final != nil {
		if s, ok := scoreByArtifact[final.ID.String()]; ok {
			fmt.Fprintf(os.Stderr, "score: %.2f (alignment %.2f, completeness %.2f)\n",
				s.Total, s.Dimensions.Alignment, s.Dimensions.Completeness)
		}
	}
}

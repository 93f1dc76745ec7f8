package root

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bernard-assistant/bernard/pkg/chat"
	"github.com/bernard-assistant/bernard/pkg/config"
	"github.com/bernard-assistant/bernard/pkg/environment"
	"github.com/bernard-assistant/bernard/pkg/harness"
	"github.com/bernard-assistant/bernard/pkg/model/provider"
	"github.com/bernard-assistant/bernard/pkg/telemetry"
	"github.com/bernard-assistant/bernard/pkg/tools/builtin"
)

type runFlags struct {
	configFile string
	prompt     string
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one assistant turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(flags.prompt) == "" {
				return errors.New("--prompt is required")
			}
			return runTurn(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "bernard.yaml", "Path to the configuration file")
	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "", "User message to process")

	return cmd
}

func runTurn(cmd *cobra.Command, flags runFlags) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(flags.configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	env := environment.NewOS()

	routingCfg, err := cfg.GetModelConfig(cfg.Routing)
	if err != nil {
		return err
	}
	responseCfg, err := cfg.GetModelConfig(cfg.Response)
	if err != nil {
		return err
	}

	routing, err := provider.New(ctx, routingCfg, env)
	if err != nil {
		return fmt.Errorf("creating routing model: %w", err)
	}
	response, err := provider.New(ctx, responseCfg, env)
	if err != nil {
		return fmt.Errorf("creating response model: %w", err)
	}

	h := harness.New(routing, response, builtin.All(env), harness.Options{
		MaxIterations:    cfg.Harness.MaxIterations,
		ToolTimeout:      cfg.Harness.ToolTimeout,
		MaxParallelCalls: cfg.Harness.MaxParallelCalls,
		Recorder:         telemetry.NewLogRecorder(nil),
	})

	messages := []chat.Message{chat.UserMessage(flags.prompt)}

	var printed int
	result, err := h.RunTurnStream(ctx, messages, func(partial chat.Message) {
		if len(partial.Content) > printed {
			fmt.Fprint(cmd.OutOrStdout(), partial.Content[printed:])
			printed = len(partial.Content)
		}
	})
	if err != nil {
		return err
	}
	if printed == 0 {
		fmt.Fprint(cmd.OutOrStdout(), result.Text)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	slog.Debug("Turn finished",
		"turn_id", result.TurnID,
		"iterations", result.Iterations,
		"done", result.Done,
	)
	return nil
}

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmorgan81/circuitcraft/internal/controller"
	"github.com/dmorgan81/circuitcraft/internal/inject"
	"github.com/dmorgan81/circuitcraft/internal/notify"
	"github.com/samber/do"
	"github.com/spf13/cobra"
)

var output string

var generateCmd = &cobra.Command{
	Use:   "generate [prompt...]",
	Short: "Generate a single circuit diagram and write the SVG",
	Long: `generate sends one circuit description to the API and writes the
rendered SVG to stdout or a file. The prompt is read from stdin when no
arguments are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, err := setup(cmd)
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		if len(args) == 0 {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("error reading prompt: %w", err)
			}
			text = string(b)
		}

		injector := inject.Setup(ctx, cfg)
		defer func() { _ = injector.Shutdown() }()

		factory, err := do.Invoke[*controller.Factory](injector)
		if err != nil {
			return err
		}
		c := factory.New(notify.Writer{W: cmd.ErrOrStderr()})
		defer func() { _ = c.Close() }()

		if err := c.Submit(ctx, text); err != nil {
			// Already reported through the notifier.
			cmd.SilenceErrors = true
			return err
		}
		res := c.Result()
		if res == nil {
			return errors.New("no result returned")
		}

		if output == "" || output == "-" {
			_, err = cmd.OutOrStdout().Write(res.SVG())
			return err
		}
		return os.WriteFile(output, res.SVG(), 0o644)
	},
}

func init() {
	generateCmd.Flags().StringVarP(&output, "output", "o", "", "write the SVG to this file instead of stdout")
}

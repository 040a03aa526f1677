// Command cassie runs the e-commerce support agent: the full server, a local
// chat REPL, the data seeder, and ad-hoc reports.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/cassiedesk/cassie/common/version"
	"github.com/cassiedesk/cassie/internal/cassie/app"
	"github.com/cassiedesk/cassie/internal/cassie/config"
	"github.com/cassiedesk/cassie/internal/cassie/reports"
	"github.com/cassiedesk/cassie/internal/cassie/seed"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cassie",
		Short:         "Rule-first e-commerce support agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML")

	loadConfig := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(serveCmd(loadConfig))
	root.AddCommand(chatCmd(loadConfig))
	root.AddCommand(seedCmd(loadConfig))
	root.AddCommand(reportCmd(loadConfig))
	root.AddCommand(versionCmd())
	return root
}

func serveCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the support server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			return a.Run()
		},
	}
}

func chatCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent in a local REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Stop()
			return runREPL(a, email, name)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "customer email for ticket attribution")
	cmd.Flags().StringVar(&name, "name", "", "customer name")
	return cmd
}

func runREPL(a *app.App, email, name string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".cassie_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to init readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Cassie chat. Type 'quit' to exit.")
	sessionID := "local-repl"
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("Bye!")
				return nil
			}
			return err
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			fmt.Println("Bye!")
			return nil
		}

		turn, err := a.Engine().Process(context.Background(), sessionID, text, email, name)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println("cassie>", turn.Reply)
		if turn.TicketID > 0 {
			fmt.Printf("        [ticket #%d]\n", turn.TicketID)
		}
	}
}

func seedCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in FAQ knowledge base and demo orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			counts, err := seed.Load(cmd.Context(), st)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d FAQs and %d demo orders into %s\n",
				counts.FAQs, counts.Orders, cfg.DatabasePath)
			return nil
		},
	}
}

func reportCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var tz string

	cmd := &cobra.Command{
		Use:   "report [query]",
		Short: "Print a ticket summary for a natural-language range",
		Long: `Print a ticket summary for a natural-language range, for example:
  cassie report "tickets this week"
  cassie report "monthly ticket summary for january 2025"
  cassie report "from 2025-01-01 to 2025-01-31"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			query := "this week"
			if len(args) == 1 {
				query = args[0]
			}
			loc := reports.Location(tz)
			if tz == "" {
				loc = cfg.Location()
			}

			rng := reports.RangeFromQuery(query, loc, time.Now())
			summary, err := st.ReportSummary(cmd.Context(), rng.FromUTC, rng.ToUTC)
			if err != nil {
				return err
			}
			fmt.Printf("Window %s .. %s UTC\n\n", rng.FromUTC, rng.ToUTC)
			fmt.Println(reports.FormatSummary(summary))
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "timezone for the range query")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("cassie", version.Info())
		},
	}
}

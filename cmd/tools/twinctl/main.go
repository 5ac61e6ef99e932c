// Command twinctl inspects the persona and runs one-off chat turns against the
// configured model without starting the HTTP server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/digital-twin/backend/internal/config"
	"github.com/zhouzirui/digital-twin/backend/internal/model/persona"
	"github.com/zhouzirui/digital-twin/backend/internal/notify"
	"github.com/zhouzirui/digital-twin/backend/internal/service/ai"
	"github.com/zhouzirui/digital-twin/backend/internal/service/profile"
	"github.com/zhouzirui/digital-twin/backend/internal/service/recording"
	"github.com/zhouzirui/digital-twin/backend/internal/service/session"
	"github.com/zhouzirui/digital-twin/backend/internal/service/similarity"
)

var (
	meDir      string
	verbose    bool
	sendNotify bool
	sessionID  string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "twinctl",
	Short:         "Inspect and exercise the digital twin backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if meDir != "" {
			cfg.Persona.MeDir = meDir
			cfg.Persona.SanityProjectID = ""
		}

		logCfg := cfg.Log
		if verbose {
			logCfg.Level = "debug"
			logCfg.Development = true
		} else {
			logCfg.Level = "warn"
		}
		logger, err = logCfg.NewLogger()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the rendered system prompt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPersona(cmd.Context())
		if err != nil {
			return err
		}
		contact := ai.ContactChannel(p, cfg.AI.ContactURL)
		fmt.Fprintln(cmd.OutOrStdout(), ai.NewPersonaPromptManager(contact, true).BuildSystemPrompt(p))
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the loaded persona as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPersona(cmd.Context())
		if err != nil {
			return err
		}
		return writeProfile(cmd.OutOrStdout(), p)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Run one chat turn and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := loadPersona(ctx)
		if err != nil {
			return err
		}
		if !cfg.AI.Enabled() {
			return fmt.Errorf("no model credentials configured")
		}

		out := cmd.OutOrStdout()
		var notifier notify.Notifier = notify.Func(func(_ context.Context, text string) error {
			_, err := fmt.Fprintf(cmd.ErrOrStderr(), "[notify] %s\n", text)
			return err
		})
		if sendNotify {
			async, err := cfg.Notify.NewNotifier(logger.Named("notify"))
			if err != nil {
				return err
			}
			defer async.Close(context.Background())
			notifier = notify.Multi{notifier, async}
		}

		chatModel, err := cfg.AI.NewChatModel(ctx, p.Model)
		if err != nil {
			return err
		}
		var engineOpts []recording.Option
		if cfg.AI.SimilarityEnabled {
			classifierModel, err := cfg.AI.NewClassifierModel(ctx, p.Model)
			if err != nil {
				return err
			}
			classifier, err := similarity.NewService(ctx, classifierModel)
			if err != nil {
				return err
			}
			engineOpts = append(engineOpts, recording.WithClassifier(classifier))
		}
		engine := recording.NewEngine(session.NewStore(session.Options{}), notifier, engineOpts...)

		svc, err := ai.NewService(chatModel, p, engine, notifier, logger.Named("ai"), ai.Options{
			MaxToolRounds: cfg.AI.MaxToolRounds,
			TurnTimeout:   cfg.AI.TurnTimeout,
			ContactURL:    cfg.AI.ContactURL,
		})
		if err != nil {
			return err
		}

		id := sessionID
		if id == "" {
			id = session.NewID()
		}
		reply := svc.Chat(ctx, id, strings.Join(args, " "), nil, ai.WithObserver(func(e ai.Event) {
			if e.Kind == ai.EventTool {
				fmt.Fprintf(cmd.ErrOrStderr(), "[tool] %s -> %s\n", e.Tool, e.Result)
			}
		}))
		fmt.Fprintln(out, reply)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&meDir, "me-dir", "", "load the persona from this directory instead of the configured source")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	askCmd.Flags().BoolVar(&sendNotify, "notify", false, "also deliver notifications to the configured backends")
	askCmd.Flags().StringVar(&sessionID, "session", "", "session id to record under (default: random)")

	rootCmd.AddCommand(promptCmd, profileCmd, askCmd)
}

func loadPersona(ctx context.Context) (persona.Persona, error) {
	loader := profile.NewLoader(profile.WithLogger(logger.Named("profile")))
	return loader.Load(ctx, profile.Source{
		SanityProjectID: cfg.Persona.SanityProjectID,
		SanityDataset:   cfg.Persona.SanityDataset,
		SanityToken:     cfg.Persona.SanityToken,
		MeDir:           cfg.Persona.MeDir,
	})
}

// profileDocument is the YAML view of a persona: public fields plus text sizes.
type profileDocument struct {
	persona.Persona `yaml:",inline"`
	SummaryChars    int  `yaml:"summary_chars"`
	ProfileChars    int  `yaml:"profile_chars"`
	ReferenceLetter bool `yaml:"reference_letter"`
}

func writeProfile(w io.Writer, p persona.Persona) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(profileDocument{
		Persona:         p,
		SummaryChars:    len([]rune(p.Summary)),
		ProfileChars:    len([]rune(p.Profile)),
		ReferenceLetter: p.HasReferenceLetter(),
	}); err != nil {
		return err
	}
	return enc.Close()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "twinctl:", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/auth"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/config"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deckfile"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deckservice"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

var errMissingToken = errors.New("session token required (--token or POKEDECK_SESSION_TOKEN)")

func newDeckCommand() *cobra.Command {
	deckCmd := &cobra.Command{
		Use:   "deck",
		Short: "Inspect, export and import the persisted deck",
	}
	deckCmd.PersistentFlags().String("token", "", "Session token issued by the login service")
	bindFlag(deckCmd, "session.token", "token")

	var format, output, name string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Print the persisted deck as text or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeckExport(cmd, format, output, name)
		},
	}
	exportCmd.Flags().StringVar(&format, "format", formatText, "Output format (text, yaml)")
	exportCmd.Flags().StringVar(&output, "output", "", "Write to this file instead of stdout")
	exportCmd.Flags().StringVar(&name, "name", "", "Deck name recorded in YAML output")

	importCmd := &cobra.Command{
		Use:   "import <deck.yaml>",
		Short: "Stage every card of a YAML deck file and submit them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeckImport(cmd, args[0])
		},
	}

	deckCmd.AddCommand(exportCmd, importCmd)
	return deckCmd
}

type deckCommandEnv struct {
	client  *deckservice.Client
	session auth.Session
	logger  *zap.Logger
}

func newDeckCommandEnv() (deckCommandEnv, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return deckCommandEnv{}, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return deckCommandEnv{}, err
	}
	session := auth.NewSession(viper.GetString("session.token"))
	if !session.Present() {
		return deckCommandEnv{}, errMissingToken
	}
	client, err := deckservice.NewClient(deckservice.ClientConfig{
		BaseURL: appConfig.DeckServiceURL,
		Timeout: appConfig.DeckServiceTimeout,
		Logger:  logger,
	})
	if err != nil {
		return deckCommandEnv{}, err
	}
	return deckCommandEnv{client: client, session: session, logger: logger}, nil
}

func runDeckExport(cmd *cobra.Command, format, output, name string) error {
	env, err := newDeckCommandEnv()
	if err != nil {
		return err
	}
	defer env.logger.Sync() //nolint:errcheck

	view, err := env.client.GetDeck(cmd.Context(), env.session)
	if err != nil {
		return err
	}

	if output == "" {
		return writeExport(cmd.OutOrStdout(), format, name, view)
	}
	file, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := writeExport(file, format, name, view); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func writeExport(writer io.Writer, format, name string, view deck.DeckView) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case formatText:
		return deckfile.Render(writer, view)
	case formatYAML:
		encoded, err := deckfile.Marshal(deckfile.FromDeck(name, view.Deck))
		if err != nil {
			return err
		}
		_, err = writer.Write(encoded)
		return err
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func runDeckImport(cmd *cobra.Command, path string) error {
	file, err := deckfile.ReadFile(path)
	if err != nil {
		return err
	}
	staged, err := file.Cards()
	if err != nil {
		return err
	}

	env, err := newDeckCommandEnv()
	if err != nil {
		return err
	}
	defer env.logger.Sync() //nolint:errcheck

	view, err := importCards(cmd.Context(), env, staged)
	if err != nil {
		return err
	}
	env.logger.Info("deck file imported", zap.String("path", path), zap.Int("cards", len(staged)))
	return deckfile.Render(cmd.OutOrStdout(), view)
}

// importCards runs the cards through a controller so capacity limits apply
// exactly as they do for a browser view.
func importCards(ctx context.Context, env deckCommandEnv, staged []cards.Card) (deck.DeckView, error) {
	controller, err := deck.NewController(deck.ControllerConfig{
		DeckService: env.client,
		Logger:      env.logger,
	})
	if err != nil {
		return deck.DeckView{}, err
	}
	if err := controller.Load(ctx, env.session); err != nil {
		return deck.DeckView{}, err
	}
	for _, card := range staged {
		if _, err := controller.Stage(env.session, card); err != nil {
			return deck.DeckView{}, fmt.Errorf("stage %s %q: %w", card.Category, card.Name, err)
		}
	}
	return controller.Submit(ctx, env.session)
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chriseon/relay/internal/models"
)

func newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage BYOK provider keys",
	}
	cmd.AddCommand(newKeysSetCommand())
	cmd.AddCommand(newKeysShowCommand())
	return cmd
}

func newKeysSetCommand() *cobra.Command {
	var disabled bool

	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store a provider secret, read from stdin",
		Long: `Store a provider secret for BYOK credential resolution.

The secret is read from stdin so it never appears in shell history or
process listings:

  echo "$OPENAI_API_KEY" | relay keys set openai`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading secret from stdin: %w", err)
			}
			secret := strings.TrimSpace(line)
			if secret == "" {
				return fmt.Errorf("empty secret")
			}

			eng, err := buildEngine(".")
			if err != nil {
				return err
			}
			defer eng.close()

			providerName := strings.ToLower(args[0])
			key := &models.ProviderKey{
				ID:        uuid.New(),
				Provider:  providerName,
				Enabled:   !disabled,
				Secret:    secret,
				CreatedAt: time.Now().UTC(),
			}
			if err := eng.store.PutProviderKey(cmd.Context(), key); err != nil {
				return err
			}

			fmt.Printf("stored key for %s (enabled=%t)\n", providerName, key.Enabled)
			return nil
		},
	}

	cmd.Flags().BoolVar(&disabled, "disabled", false, "Store the key in a disabled state")
	return cmd
}

func newKeysShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <provider>",
		Short: "Show whether a provider key is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(".")
			if err != nil {
				return err
			}
			defer eng.close()

			key, err := eng.store.ProviderKey(cmd.Context(), strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("%s: enabled=%t created=%s\n",
				key.Provider, key.Enabled, key.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

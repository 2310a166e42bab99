package commands

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	sshpkg "golang.org/x/crypto/ssh"

	"github.com/openfroyo/recipes/pkg/config"
	"github.com/openfroyo/recipes/pkg/inbox"
)

const defaultConfigTemplate = `# Recipes configuration

store:
  path: %[1]s

app_data:
  root: %[2]s

media:
  root: %[3]s

scripts:
  timeout: 30s

scheduler:
  enabled: true
  interval: 1s
  claim_timeout: 10m

inbox:
  enabled: true
  dir: %[4]s

# Deployment targets for "recipes push".
# targets:
#   - name: staging
#     type: sftp
#     path: /srv/recipes/inbox
#     ssh:
#       host: staging.example.com
#       user: deploy
#       private_key_path: %[5]s
#       known_hosts_path: ~/.ssh/known_hosts
#       strict_host_key_checking: true

telemetry:
  logging:
    level: info
    format: console
  metrics:
    enabled: true
    listen_address: ":9090"
`

func newInitCommand() *cobra.Command {
	var (
		dataDir string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a recipes workspace",
		Long: `Initialize a workspace with a configuration file, the SQLite database,
the app data, media and inbox directories, and an SSH deploy key.`,
		Example: `  # Initialize in ./data with ./recipes.yaml
  recipes init

  # Initialize with a custom config path
  recipes init --config /etc/recipes/recipes.yaml --data-dir /var/lib/recipes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path := configPath
			if path == "" {
				path = config.DefaultPath
			}
			if dataDir == "" {
				dataDir = filepath.Join(filepath.Dir(path), "data")
			}

			log.Info().
				Str("config", path).
				Str("data_dir", dataDir).
				Msg("Initializing workspace")

			fmt.Printf("Initializing recipes workspace in %s\n\n", dataDir)

			inboxDir := filepath.Join(dataDir, "inbox")
			keyPath := filepath.Join(dataDir, "keys", "deploy-ed25519")
			dirs := []string{
				dataDir,
				filepath.Join(dataDir, "app_data"),
				filepath.Join(dataDir, "media"),
				inboxDir,
				filepath.Join(inboxDir, inbox.ProcessedDir),
				filepath.Join(inboxDir, inbox.FailedDir),
				filepath.Dir(keyPath),
			}
			for _, dir := range dirs {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
				fmt.Printf("✓ Created directory: %s\n", dir)
			}

			cfg := config.Default()
			cfg.Store.Path = filepath.Join(dataDir, "recipes.db")
			cfg.AppData.Root = filepath.Join(dataDir, "app_data")
			cfg.Media.Root = filepath.Join(dataDir, "media")
			cfg.Inbox.Dir = inboxDir

			if err := initDatabase(ctx, cfg); err != nil {
				return err
			}
			fmt.Printf("✓ Initialized SQLite database: %s\n", cfg.Store.Path)

			if err := writeConfig(path, cfg, keyPath, force); err != nil {
				return err
			}

			if err := generateDeployKey(keyPath); err != nil {
				return err
			}

			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Check a recipe:\n")
			fmt.Printf("     recipes validate recipe.xml\n\n")
			fmt.Printf("  2. Run it:\n")
			fmt.Printf("     recipes submit recipe.xml && recipes run <execution-id>\n\n")

			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "workspace data directory (default: data next to the config file)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}

func initDatabase(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	return store.Close()
}

func writeConfig(path string, cfg *config.Config, keyPath string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Printf("✓ Config file already exists: %s\n", path)
		return nil
	}

	content := fmt.Sprintf(defaultConfigTemplate,
		cfg.Store.Path, cfg.AppData.Root, cfg.Media.Root, cfg.Inbox.Dir, keyPath)

	// The written file must load back cleanly.
	check := config.Default()
	if err := config.Parse([]byte(content), check); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Printf("✓ Created config file: %s\n", path)
	return nil
}

func generateDeployKey(keyPath string) error {
	if _, err := os.Stat(keyPath); err == nil {
		fmt.Printf("✓ SSH keypair already exists: %s\n", keyPath)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check key %s: %w", keyPath, err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	privBlock, err := sshpkg.MarshalPrivateKey(privKey, "")
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(privBlock), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	sshPubKey, err := sshpkg.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("failed to create SSH public key: %w", err)
	}
	if err := os.WriteFile(keyPath+".pub", sshpkg.MarshalAuthorizedKey(sshPubKey), 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	fmt.Printf("✓ Generated SSH keypair: %s\n", keyPath)
	return nil
}

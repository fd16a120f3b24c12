package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/complai/complai/db"
	"github.com/complai/complai/internal/config"
	"github.com/complai/complai/internal/database"
	"github.com/complai/complai/internal/knowledge"
)

// indexableExtensions lists file types ingested into the knowledge base.
var indexableExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "Index documents into the knowledge base",
	Long: `Index reads Markdown and plain-text files, embeds their content and
upserts them into the knowledge base. Directories are walked recursively.
Re-indexing a file replaces its previous content.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context, paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	logger := newLogger(cfg)

	if err := db.Migrate(cfg.DatabaseURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("creating genai client: %w", err)
	}

	store, err := knowledge.NewStore(pool, knowledge.NewGenaiEmbedder(client, cfg.EmbedderModel), logger)
	if err != nil {
		return fmt.Errorf("creating knowledge store: %w", err)
	}

	files, err := collectFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no indexable files found (want %s)", strings.Join(extensionList(), ", "))
	}

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		doc := knowledge.Document{
			ID:      documentID(path),
			Source:  filepath.Base(path),
			Content: string(content),
		}
		if err := store.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		logger.Info("indexed document", "id", doc.ID, "source", doc.Source, "bytes", len(content))
	}

	total, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}
	fmt.Printf("Indexed %d files. Knowledge base now holds %d documents.\n", len(files), total)
	return nil
}

// collectFiles expands the given paths into indexable files, walking
// directories recursively.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			if indexableExtensions[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && indexableExtensions[strings.ToLower(filepath.Ext(p))] {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", path, err)
		}
	}
	return files, nil
}

// documentID derives a stable id from the file path so re-indexing
// replaces the existing row.
func documentID(path string) string {
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(strings.ReplaceAll(id, " ", "-"))
}

func extensionList() []string {
	exts := make([]string, 0, len(indexableExtensions))
	for ext := range indexableExtensions {
		exts = append(exts, ext)
	}
	return exts
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/oxhq/varix/api"
	"github.com/oxhq/varix/db"
	"github.com/oxhq/varix/importer"
	"github.com/oxhq/varix/store"
	"github.com/oxhq/varix/uploads"
)

var (
	// Global flags
	verbose bool
	dbPath  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "varix",
	Short: "varix - variant configurator backend",
	Long: `varix serves and maintains a product variant forest: typecode
segments stored as a closure-table tree, with a configurator resolver,
constraint engine and typecode decoder on top.

Configuration comes from VARIX_* environment variables (a .env file is
picked up automatically); flags override the environment.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is not an error.
		_ = godotenv.Load()

		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	serveHost    string
	servePort    int
	serveUploads string
	serveCORS    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Connects to the database, migrates the schema, seeds the initial
admin account if the users table is empty and serves the REST API until
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := api.FromEnv()
		if cmd.Flags().Changed("host") {
			config.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			config.Port = servePort
		}
		if cmd.Flags().Changed("uploads") {
			config.UploadsDir = serveUploads
		}
		if cmd.Flags().Changed("cors") {
			config.CORSOrigin = serveCORS
		}
		if dbPath != "" {
			config.DatabaseURL = dbPath
		}
		if verbose {
			config.Debug = true
		}

		server, err := api.NewServer(config, logger)
		if err != nil {
			return err
		}
		return server.Start()
	},
}

var (
	importJSON        string
	importDates       bool
	importKmat        string
	importSubsegments string
	importRecreate    bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a JSON tree file into the database",
	Long: `Walks a hierarchical tree file (either a top-level array of product
families or an object with a children array), inserts every node with its
parsed label segments, rebuilds the closure table and seeds the initial
admin account. KMAT references and sub-segment definitions can be loaded
from separate files in the same run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(gdb)

		ctx := cmd.Context()
		im := importer.New(gdb, logger)

		stats, err := im.Import(ctx, importJSON, importer.Options{
			IncludeDates: importDates,
			Recreate:     importRecreate,
		})
		if err != nil {
			return err
		}
		printStats(stats)

		config := api.FromEnv()
		if _, err := im.SeedAdmin(ctx, config.InitialAdminUsername, config.InitialAdminEmail, config.InitialAdminPassword); err != nil {
			return err
		}

		if importKmat != "" {
			kmatStats, err := im.ImportKmatReferences(ctx, importKmat, config.InitialAdminUsername)
			if err != nil {
				return err
			}
			fmt.Printf("KMAT references: %d imported, %d skipped\n", kmatStats.Imported, kmatStats.Skipped)
		}
		if importSubsegments != "" {
			count, err := im.ImportSubsegments(ctx, importSubsegments, config.InitialAdminUsername)
			if err != nil {
				return err
			}
			fmt.Printf("Sub-segment definitions: %d imported\n", count)
		}
		return nil
	},
}

var mergeJSON string

var mergePreviewCmd = &cobra.Command{
	Use:   "merge-preview",
	Short: "Preview merging a tree file against the stored forest",
	Long: `Compares an incoming tree file with the stored forest and prints,
per family, which code paths would be added, which exist only in the
database, and unified diffs of changed label texts. Nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(gdb)

		result, err := importer.New(gdb, logger).MergePreview(cmd.Context(), mergeJSON)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the initial admin account if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(gdb)

		config := api.FromEnv()
		created, err := importer.New(gdb, logger).SeedAdmin(cmd.Context(),
			config.InitialAdminUsername, config.InitialAdminEmail, config.InitialAdminPassword)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Admin %q created. The password must be changed on first login.\n", config.InitialAdminUsername)
		} else {
			fmt.Println("An admin account already exists, nothing to do.")
		}
		return nil
	},
}

var (
	sweepPattern string
	sweepDryRun  bool
)

var sweepUploadsCmd = &cobra.Command{
	Use:   "sweep-uploads",
	Short: "Delete uploaded images no node references any more",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDatabase()
		if err != nil {
			return err
		}
		defer closeDatabase(gdb)

		referenced, err := store.New(gdb).AllPictureURLs(cmd.Context())
		if err != nil {
			return err
		}
		config := api.FromEnv()
		local, err := uploads.NewLocal(config.UploadsDir)
		if err != nil {
			return err
		}
		result, err := local.Sweep(referenced, sweepPattern, sweepDryRun)
		if err != nil {
			return err
		}

		mode := "removed"
		if result.DryRun {
			mode = "would remove"
		}
		fmt.Printf("Scanned %d files, %s %d:\n", result.Scanned, mode, len(result.Removed))
		for _, name := range result.Removed {
			fmt.Printf("  %s\n", name)
		}
		return nil
	},
}

func openDatabase() (*gorm.DB, error) {
	url := dbPath
	if url == "" {
		url = api.FromEnv().DatabaseURL
	}
	return db.Connect(url, verbose)
}

func closeDatabase(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func printStats(stats *importer.Stats) {
	fmt.Printf("Imported %d nodes:\n", stats.NodesImported)
	fmt.Printf("  Product families:      %d\n", stats.ProductFamilies)
	fmt.Printf("  Pattern containers:    %d\n", stats.PatternContainers)
	fmt.Printf("  Code nodes:            %d\n", stats.CodeNodes)
	fmt.Printf("  Leaf products:         %d\n", stats.LeafProducts)
	fmt.Printf("  Intermediate products: %d\n", stats.IntermediateProducts)
	fmt.Printf("  Label segments:        %d\n", stats.LabelSegments)
	if stats.DatesImported > 0 {
		fmt.Printf("  Date records:          %d\n", stats.DatesImported)
	}
	fmt.Printf("  Closure paths:         %d\n", stats.PathsCreated)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path or URL (default: VARIX_DATABASE_URL)")

	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "listen address")
	serveCmd.Flags().IntVar(&servePort, "port", 8000, "listen port")
	serveCmd.Flags().StringVar(&serveUploads, "uploads", "uploads", "directory for uploaded node images")
	serveCmd.Flags().StringVar(&serveCORS, "cors", "*", "allowed CORS origin")

	importCmd.Flags().StringVar(&importJSON, "json", "", "tree file to import")
	importCmd.Flags().BoolVar(&importDates, "dates", false, "also import date_info blocks")
	importCmd.Flags().StringVar(&importKmat, "kmat", "", "KMAT references file to import")
	importCmd.Flags().StringVar(&importSubsegments, "subsegments", "", "sub-segment definitions file to import")
	importCmd.Flags().BoolVar(&importRecreate, "recreate", false, "clear product data first (user accounts survive)")
	_ = importCmd.MarkFlagRequired("json")

	mergePreviewCmd.Flags().StringVar(&mergeJSON, "json", "", "tree file to compare")
	_ = mergePreviewCmd.MarkFlagRequired("json")

	sweepUploadsCmd.Flags().StringVar(&sweepPattern, "pattern", "*", "glob pattern of files to consider")
	sweepUploadsCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "report without deleting")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(mergePreviewCmd)
	rootCmd.AddCommand(seedAdminCmd)
	rootCmd.AddCommand(sweepUploadsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

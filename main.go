package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marquee-app/marquee/config"
	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/omdb"
	"github.com/marquee-app/marquee/web"
	"github.com/marquee-app/marquee/web/job"
	"github.com/marquee-app/marquee/web/service"

	"github.com/spf13/cobra"
)

func initLogger() {
	level, err := logger.LevelFromConfig(config.GetLogLevel())
	if err != nil {
		log.Fatal(err)
	}
	logger.InitLogger(level)
}

func initDB() error {
	return database.InitDB(config.GetDatabaseConfig())
}

func runWebServer() {
	log.Printf("%v %v", config.GetName(), config.GetVersion())
	initLogger()

	if err := initDB(); err != nil {
		log.Fatal(err)
	}
	defer database.CloseDB()

	server := web.NewServer()
	if err := server.Start(); err != nil {
		log.Println(err)
		return
	}

	sigCh := make(chan os.Signal, 1)
	// Trap shutdown signals
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, os.Interrupt)
	for {
		sig := <-sigCh

		switch sig {
		case syscall.SIGHUP:
			if err := server.Stop(); err != nil {
				logger.Warning("stop server err:", err)
			}
			if err := config.LoadEnv(); err != nil {
				logger.Warning("reload .env failed:", err)
			}
			server = web.NewServer()
			if err := server.Start(); err != nil {
				log.Println(err)
				return
			}
		default:
			if err := server.Stop(); err != nil {
				logger.Warning("stop server err:", err)
			}
			return
		}
	}
}

func seedCatalog(path string) {
	if err := initDB(); err != nil {
		fmt.Println(err)
		return
	}
	defer database.CloseDB()

	if err := service.NewMovieService(nil, 0).CreateMovieTable(); err != nil {
		fmt.Println("create movie table failed:", err)
		return
	}
	seedService := service.SeedService{}
	n, err := seedService.SeedMoviesFromCSV(context.Background(), path)
	if err != nil {
		fmt.Println("seed catalog failed:", err)
		return
	}
	fmt.Printf("seeded %d rows from %s\n", n, path)
}

func ensureAdmin(email, password string) {
	if email == "" || password == "" {
		fmt.Println("both --email and --password are required")
		return
	}
	if err := initDB(); err != nil {
		fmt.Println(err)
		return
	}
	defer database.CloseDB()

	userService := service.UserService{}
	user, err := userService.EnsureAdmin(context.Background(), email, password)
	if err != nil {
		fmt.Println("set administrator failed:", err)
		return
	}
	fmt.Printf("administrator %s (id %d) ready\n", user.Email, user.Id)
}

func enrichCatalog(limit int) {
	key := config.GetOmdbAPIKey()
	if key == "" {
		fmt.Println("OMDB_API_KEY is not set")
		return
	}
	if err := initDB(); err != nil {
		fmt.Println(err)
		return
	}
	defer database.CloseDB()

	client := omdb.NewClient(key, omdb.WithBaseURL(config.GetOmdbBaseURL()))
	movieService := service.NewMovieService(client, config.GetOmdbRefreshAge())
	enrichJob := job.NewEnrichMoviesJob(movieService, &service.Notifier{}, limit)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	result, err := enrichJob.RunOnce(ctx, limit)
	if err != nil {
		fmt.Println("enrichment failed:", err)
	}
	fmt.Printf("enriched %d, removed %d, failed %d\n", result.Enriched, result.Removed, result.Failed)
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Println("load .env failed:", err)
	}

	var rootCmd = &cobra.Command{
		Use:   "marquee",
		Short: "Movie and TV catalog with OMDB enrichment",
		Run: func(cmd *cobra.Command, args []string) {
			runWebServer()
		},
	}

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the web server",
		Run: func(cmd *cobra.Command, args []string) {
			runWebServer()
		},
	}

	var seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Load the catalog CSV into the database",
		Run: func(cmd *cobra.Command, args []string) {
			path, _ := cmd.Flags().GetString("csv")
			seedCatalog(path)
		},
	}
	seedCmd.Flags().String("csv", config.GetCSVPath(), "catalog CSV file")

	var adminCmd = &cobra.Command{
		Use:   "admin",
		Short: "Create or promote an administrator",
		Run: func(cmd *cobra.Command, args []string) {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			ensureAdmin(email, password)
		},
	}
	adminCmd.Flags().String("email", config.GetAdminEmail(), "administrator email")
	adminCmd.Flags().String("password", "", "administrator password")

	var enrichCmd = &cobra.Command{
		Use:   "enrich",
		Short: "Run one OMDB enrichment batch",
		Run: func(cmd *cobra.Command, args []string) {
			limit, _ := cmd.Flags().GetInt("limit")
			enrichCatalog(limit)
		},
	}
	enrichCmd.Flags().Int("limit", config.GetEnrichBatch(), "titles to look up")

	rootCmd.AddCommand(runCmd, seedCmd, adminCmd, enrichCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

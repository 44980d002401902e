package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/1RohitKumawat/MultiVendorSolution"
	"github.com/ghetzel/cli"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var log = logrus.WithField("component", "migrator")

func main() {
	app := cli.NewApp()
	app.Name = `migrator`
	app.Usage = `Apply and revert versioned schema migrations`
	app.Version = `1.0.0`
	app.EnableBashCompletion = false

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   `log-level, L`,
			Usage:  `Level of log output verbosity`,
			Value:  `info`,
			EnvVar: `LOGLEVEL`,
		},
		cli.StringFlag{
			Name:   `driver, d`,
			Usage:  `Database driver: postgres or sqlite`,
			Value:  `postgres`,
			EnvVar: `MIGRATOR_DRIVER`,
		},
		cli.StringFlag{
			Name:   `dsn`,
			Usage:  `Database connection string (file path for sqlite)`,
			EnvVar: `MIGRATOR_DSN`,
		},
		cli.StringFlag{
			Name:   `manifest, m`,
			Usage:  `Path to the YAML migrations manifest`,
			Value:  `migrations.yaml`,
			EnvVar: `MIGRATOR_MANIFEST`,
		},
		cli.StringFlag{
			Name:  `table`,
			Usage: `Name of the applied migrations table`,
			Value: `schema_migrations`,
		},
		cli.IntFlag{
			Name:  `lock-retries`,
			Usage: `How many times to retry a busy migration lock`,
			Value: db_migrator.DefaultLockRetries,
		},
		cli.DurationFlag{
			Name:  `timeout`,
			Usage: `Maximum duration of the whole run`,
			Value: 10 * time.Minute,
		},
	}

	app.Before = func(c *cli.Context) error {
		level, err := logrus.ParseLevel(c.String(`log-level`))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:  `migrate`,
			Usage: `Apply all pending migrations`,
			Action: func(c *cli.Context) {
				run(c, func(ctx context.Context, manager *db_migrator.MigrationManager) error {
					return manager.Migrate(ctx)
				})
			},
		}, {
			Name:      `downgrade`,
			Usage:     `Revert all applied migrations newer than the target version`,
			ArgsUsage: `TARGET_VERSION`,
			Action: func(c *cli.Context) {
				target := c.Args().First()
				run(c, func(ctx context.Context, manager *db_migrator.MigrationManager) error {
					return manager.Downgrade(ctx, target)
				})
			},
		}, {
			Name:  `status`,
			Usage: `Show state of every known migration`,
			Action: func(c *cli.Context) {
				run(c, func(ctx context.Context, manager *db_migrator.MigrationManager) error {
					statuses, err := manager.Status(ctx)
					if err != nil {
						return err
					}

					tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "VERSION\tSTATE\tSTEP\tDESCRIPTION")
					for _, status := range statuses {
						fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", status.Version, status.State, status.Step, status.Total, status.Description)
					}
					return tw.Flush()
				})
			},
		}, {
			Name:  `pending`,
			Usage: `List migrations that migrate would apply`,
			Action: func(c *cli.Context) {
				run(c, func(ctx context.Context, manager *db_migrator.MigrationManager) error {
					pending, err := manager.Pending(ctx)
					if err != nil {
						return err
					}
					for _, descriptor := range pending {
						fmt.Println(descriptor)
					}
					return nil
				})
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context, fn func(ctx context.Context, manager *db_migrator.MigrationManager) error) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx, cancelTimeout := context.WithTimeout(ctx, c.GlobalDuration(`timeout`))
	defer cancelTimeout()

	manager, err := newManager(c)
	if err != nil {
		log.Fatal(err)
	}

	if err = fn(ctx, manager); err != nil {
		log.Fatal(err)
	}
}

func newManager(c *cli.Context) (*db_migrator.MigrationManager, error) {
	db, err := openDatabase(c.GlobalString(`driver`), c.GlobalString(`dsn`))
	if err != nil {
		return nil, err
	}

	migrations, err := db_migrator.LoadManifestFile(c.GlobalString(`manifest`))
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	manager, err := db_migrator.NewMigrationsManager(
		db_migrator.NewGormStore(db, db_migrator.WithTrackerTable(c.GlobalString(`table`))),
		db_migrator.WithLogger(logrus.StandardLogger()),
		db_migrator.WithLockRetries(uint64(c.GlobalInt(`lock-retries`))),
	)
	if err != nil {
		return nil, err
	}

	if err = manager.Register(migrations...); err != nil {
		return nil, fmt.Errorf("register migrations: %w", err)
	}

	return manager, nil
}

func openDatabase(driver string, dsn string) (*gorm.DB, error) {
	if dsn == `` {
		return nil, fmt.Errorf("database dsn is required")
	}

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch driver {
	case `postgres`:
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), config)
	case `sqlite`:
		return gorm.Open(sqlite.Open(dsn), config)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

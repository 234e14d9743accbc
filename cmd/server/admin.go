package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/election-voting-portal/internal/app"
	"github.com/iliyamo/election-voting-portal/internal/config"
	"github.com/iliyamo/election-voting-portal/internal/database"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one lifecycle sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeDB, err := offlineApp()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		rep := a.Sweeper.Sweep(ctx)
		log.WithFields(log.Fields{
			"activated":   rep.Activated,
			"completed":   rep.Completed,
			"cached":      rep.Cached,
			"failed":      rep.Failed,
			"otps_purged": rep.OTPsPurged,
		}).Info("sweep finished")
		return nil
	},
}

var seedAdmin struct {
	name, email, password string
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create a verified administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeDB, err := offlineApp()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		u, err := a.Auth.SeedAdmin(ctx, seedAdmin.name, seedAdmin.email, seedAdmin.password)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"id": u.ID, "email": u.Email}).Info("administrator created")
		return nil
	},
}

func init() {
	f := seedAdminCmd.Flags()
	f.StringVar(&seedAdmin.name, "name", "Administrator", "display name")
	f.StringVar(&seedAdmin.email, "email", "", "login email")
	f.StringVar(&seedAdmin.password, "password", "", "initial password")
	_ = seedAdminCmd.MarkFlagRequired("email")
	_ = seedAdminCmd.MarkFlagRequired("password")
}

// offlineApp opens the database and assembles the services without Redis or
// RabbitMQ.  Audit events are written inline.
func offlineApp() (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, dialect, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	a := app.New(app.Options{Config: cfg, DB: db, Dialect: dialect})
	return a, func() { _ = db.Close() }, nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
	"github.com/noah-isme/dbos-admissions-api/internal/repository"
	"github.com/noah-isme/dbos-admissions-api/internal/service"
	"github.com/noah-isme/dbos-admissions-api/pkg/config"
	"github.com/noah-isme/dbos-admissions-api/pkg/database"
	"github.com/noah-isme/dbos-admissions-api/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "seed_admin",
		Usage: "create or reset an admissions admin account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true, Usage: "admin email, must pass the admin allow-list"},
			&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"SEED_ADMIN_PASSWORD"}},
			&cli.StringFlag{Name: "name", Value: "Admissions Office"},
			&cli.BoolFlag{Name: "super", Usage: "grant the SUPERADMIN role"},
			&cli.BoolFlag{Name: "migrate", Value: true, Usage: "apply schema migrations first"},
		},
		Action: seed,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func seed(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	email := strings.ToLower(strings.TrimSpace(c.String("email")))
	if !service.NewAdminGate(cfg.Admin.AllowedDomains, cfg.Admin.AllowedEmails).Allows(email) {
		return fmt.Errorf("%s is not on the admin allow-list", email)
	}
	if len(c.String("password")) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if c.Bool("migrate") {
		if err := database.Migrate(db, cfg.Database.MigrationsDir, logr); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.String("password")), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	role := models.RoleAdmin
	if c.Bool("super") {
		role = models.RoleSuperAdmin
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     c.String("name"),
		Role:         role,
		Active:       true,
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	if err := repository.NewUserRepository(db).Upsert(ctx, user); err != nil {
		return err
	}

	logr.Info("admin account ready", zap.String("email", user.Email), zap.String("role", string(user.Role)))
	return nil
}

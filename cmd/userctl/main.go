package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/ordercast/internal/auth/domain"
	authrepository "github.com/smallbiznis/ordercast/internal/auth/repository"
	authservice "github.com/smallbiznis/ordercast/internal/auth/service"
	"github.com/smallbiznis/ordercast/internal/config"
	"github.com/smallbiznis/ordercast/internal/migration"
	"github.com/smallbiznis/ordercast/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const usage = `Manage tenant accounts.

Usage:
  userctl create --username <name> --password <password>
  userctl change-password --username <name> --password <new-password>
  userctl delete --username <name>
  userctl list
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	username := fs.String("username", "", "tenant username")
	pass := fs.String("password", "", "tenant password")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	svc, cleanup, err := buildService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "userctl: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "create":
		tenant, err := svc.CreateTenant(ctx, *username, *pass)
		if err != nil {
			fail(err)
		}
		fmt.Printf("created tenant %s (id %s)\n", tenant.Username, tenant.ID.String())
	case "change-password":
		if err := svc.ChangePassword(ctx, *username, *pass); err != nil {
			fail(err)
		}
		fmt.Printf("password changed for %s\n", *username)
	case "delete":
		if err := svc.DeleteTenant(ctx, *username); err != nil {
			fail(err)
		}
		fmt.Printf("deleted tenant %s\n", *username)
	case "list":
		ids, err := svc.ListTenantIDs(ctx)
		if err != nil {
			fail(err)
		}
		for _, id := range ids {
			fmt.Println(id.String())
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "userctl: %v\n", err)
	os.Exit(1)
}

func buildService() (service authdomain.Service, cleanup func(), err error) {
	cfg := config.Load()

	dialector, err := db.Dialect(cfg)
	if err != nil {
		return nil, nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, nil, err
	}
	if err := migration.RunMigrations(sqlDB, cfg.DBType); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	svc := authservice.New(authservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  authrepository.Provide(),
	})
	return svc, func() { _ = sqlDB.Close() }, nil
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	auditservice "benefits/internal/audit/service"
	auditstore "benefits/internal/audit/store"
	identitymodels "benefits/internal/identity/models"
	"benefits/internal/identity/revocation"
	identityservice "benefits/internal/identity/service"
	identitystore "benefits/internal/identity/store"
	jwttoken "benefits/internal/jwt_token"
	"benefits/pkg/domain"
	"benefits/pkg/platform/tx"
)

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Manage portal accounts",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Register a verified account, e.g. the first admin",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "national-id", Required: true},
					&cli.StringFlag{Name: "phone", Required: true, Usage: "+212xxxxxxxxx"},
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
					&cli.StringFlag{Name: "role", Value: string(domain.RoleAdmin)},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					role, err := domain.ParseRole(strings.TrimSpace(c.String("role")))
					if err != nil {
						return err
					}
					e, err := openEnv(ctx, c)
					if err != nil {
						return err
					}
					defer e.Close()

					svc := identityservice.New(
						identitystore.NewPostgres(e.db),
						tx.NewPostgres(e.db),
						auditservice.New(auditstore.NewPostgres(e.db), auditservice.WithLogger(e.logger)),
						jwttoken.NewJWTService(e.cfg.Auth.JWTSigningKey, e.cfg.Auth.JWTIssuer),
						revocation.NewPostgresTRL(e.db),
						identityservice.Config{TokenTTL: e.cfg.Auth.TokenTTL, CodeTTL: e.cfg.Auth.CodeTTL},
						identityservice.WithLogger(e.logger),
					)
					account, err := svc.RegisterAccount(ctx, identitymodels.NewAccount{
						NationalID: c.String("national-id"),
						Phone:      c.String("phone"),
						FirstName:  c.String("first-name"),
						LastName:   c.String("last-name"),
						Role:       role,
					})
					if err != nil {
						return err
					}
					if _, err := svc.VerifyAccount(ctx, account.ID); err != nil {
						return err
					}
					fmt.Printf("created verified %s account %s (%s)\n", account.Role, account.ID, account.NationalID)
					return nil
				},
			},
		},
	}
}

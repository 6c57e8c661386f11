package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"

	auditservice "benefits/internal/audit/service"
	auditstore "benefits/internal/audit/store"
	catalogmodels "benefits/internal/catalog/models"
	catalogservice "benefits/internal/catalog/service"
	catalogstore "benefits/internal/catalog/store"
	identitymodels "benefits/internal/identity/models"
	identitystore "benefits/internal/identity/store"
	thresholdmodels "benefits/internal/threshold/models"
	thresholdservice "benefits/internal/threshold/service"
	thresholdstore "benefits/internal/threshold/store"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type seedType struct {
	name   string
	desc   string
	points string
}

type seedCategory struct {
	name  string
	desc  string
	types []seedType
}

var defaultCatalog = []seedCategory{
	{
		name: "Vehicles",
		desc: "Motor vehicles registered to the household",
		types: []seedType{
			{"Car", "Private passenger car", "0.14"},
			{"Motorcycle", "Motorcycle or scooter", "0.05"},
			{"Truck", "Utility or agricultural truck", "0.20"},
		},
	},
	{
		name: "Real estate",
		desc: "Land and buildings owned by the household",
		types: []seedType{
			{"Apartment", "Urban apartment", "0.30"},
			{"House", "Detached house", "0.40"},
			{"Agricultural land", "Farmland, per registered parcel", "0.25"},
		},
	},
	{
		name: "Livestock",
		desc: "Animals kept for income",
		types: []seedType{
			{"Cattle", "Per head of cattle", "0.08"},
			{"Sheep", "Per flock of up to 20", "0.06"},
		},
	},
}

var defaultThresholds = map[domain.Program]string{
	domain.ProgramAMO:       "0.50",
	domain.ProgramSocialAid: "0.30",
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load the default catalog and thresholds; existing rows are kept",
		Action: func(ctx context.Context, c *cli.Command) error {
			e, err := openEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			admins, err := identitystore.NewPostgres(e.db).ListAccounts(ctx, domain.RoleAdmin, identitymodels.CitizenFilter{Limit: 1})
			if err != nil {
				return err
			}
			if len(admins) == 0 {
				return fmt.Errorf("no admin account: run `portalctl account create --role admin` first")
			}
			ctx = requestcontext.WithIdentity(ctx, admins[0].ID, domain.RoleAdmin)

			runner := tx.NewPostgres(e.db)
			audit := auditservice.New(auditstore.NewPostgres(e.db), auditservice.WithLogger(e.logger))
			catalog := catalogservice.New(catalogstore.NewPostgres(e.db), runner, audit, catalogservice.WithLogger(e.logger))
			thresholds := thresholdservice.New(thresholdstore.NewPostgres(e.db), runner, audit, thresholdservice.WithLogger(e.logger))

			if err := seedCatalog(ctx, catalog); err != nil {
				return err
			}
			return seedThresholds(ctx, thresholds)
		},
	}
}

func seedCatalog(ctx context.Context, catalog *catalogservice.Service) error {
	existing, err := catalog.ListCategories(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]catalogmodels.Category, len(existing))
	for _, c := range existing {
		byName[c.Name] = c
	}

	for _, sc := range defaultCatalog {
		category, ok := byName[sc.name]
		if !ok {
			created, err := catalog.CreateCategory(ctx, sc.name, sc.desc)
			if err != nil {
				return fmt.Errorf("category %q: %w", sc.name, err)
			}
			category = *created
			fmt.Printf("created category %q\n", sc.name)
		}
		for _, st := range sc.types {
			_, err := catalog.CreateType(ctx, category.ID, st.name, st.desc, decimal.RequireFromString(st.points))
			switch {
			case dErrors.HasCode(err, dErrors.CodeConflict):
				continue
			case err != nil:
				return fmt.Errorf("type %q: %w", st.name, err)
			}
			fmt.Printf("  created type %q (%s points)\n", st.name, st.points)
		}
	}
	return nil
}

func seedThresholds(ctx context.Context, thresholds *thresholdservice.Service) error {
	today := thresholdmodels.DateOf(time.Now())
	for _, program := range domain.Programs {
		if _, err := thresholds.Current(ctx, program); err == nil {
			continue
		} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}
		t, err := thresholds.Create(ctx, program, decimal.RequireFromString(defaultThresholds[program]), today)
		if err != nil {
			return fmt.Errorf("%s threshold: %w", program.DisplayName(), err)
		}
		fmt.Printf("set %s threshold to %s\n", program.DisplayName(), t.MaxScore.String())
	}
	return nil
}

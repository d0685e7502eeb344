package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/samber/do/v2"
	"github.com/vreid/kuji/internal/pkg/admin"
	"github.com/vreid/kuji/internal/pkg/auditor"
	"github.com/vreid/kuji/internal/pkg/bank"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/custody"
	"github.com/vreid/kuji/internal/pkg/escrow"
	"github.com/vreid/kuji/internal/pkg/kuji"
	"github.com/vreid/kuji/internal/pkg/oracle"
	"github.com/vreid/kuji/internal/pkg/registry"
	"github.com/vreid/kuji/internal/pkg/settlement"

	"github.com/urfave/cli/v3"
)

type KujiService struct {
	EchoService *common.EchoService `do:""`

	RegistryService   *registry.RegistryService     `do:""`
	EscrowService     *escrow.EscrowService         `do:""`
	SettlementService *settlement.SettlementService `do:""`
	AdminService      *admin.AdminService           `do:""`
	BankService       *bank.BankService             `do:""`
	AuditorService    *auditor.AuditorService       `do:""`
}

//nolint:funlen
func runServer(_ context.Context, cmd *cli.Command) error {
	i := do.New()

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))

	do.ProvideNamedValue(i, "vault", cmd.String("vault"))
	do.ProvideNamedValue(i, "custody-url", cmd.String("custody-url"))
	do.ProvideNamedValue(i, "oracle-url", cmd.String("oracle-url"))

	eventChan := make(chan kuji.Event, 1000) //nolint:mnd
	var eventSource <-chan kuji.Event = eventChan
	var eventSink chan<- kuji.Event = eventChan

	do.ProvideNamedValue(i, "event-source", eventSource)
	do.ProvideNamedValue(i, "event-sink", eventSink)

	do.Provide(i, common.NewDatabaseService)
	do.Provide(i, common.NewEchoService)

	do.Provide(i, custody.NewHTTPCustody)
	do.Provide(i, oracle.NewHTTPCoordinator)

	do.Provide(i, registry.NewRegistryService)
	do.Provide(i, escrow.NewEscrowService)
	do.Provide(i, settlement.NewSettlementService)
	do.Provide(i, admin.NewAdminService)
	do.Provide(i, bank.NewBankService)
	do.Provide(i, auditor.NewAuditorService)

	do.Provide(i, do.InvokeStruct[KujiService])

	databaseService, err := do.Invoke[*common.DatabaseService](i)
	if err != nil {
		return fmt.Errorf("failed to create database service: %w", err)
	}

	err = kuji.SeedConfig(databaseService.DB, kuji.Config{
		Admin:         cmd.String("admin"),
		RakePercent:   uint64(cmd.Int("rake-percent")),
		RakeRecipient: cmd.String("rake-recipient"),
		Oracle: kuji.OracleParams{
			KeyHash:          cmd.String("oracle-key"),
			SubscriptionID:   uint64(cmd.Int("oracle-subscription")),
			CallbackGasLimit: uint32(cmd.Int("oracle-gas-limit")),
			Confirmations:    uint16(cmd.Int("oracle-confirmations")),
			Words:            uint32(cmd.Int("oracle-words")),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to seed protocol configuration: %w", err)
	}

	kujiService, err := do.Invoke[KujiService](i)
	if err != nil {
		return fmt.Errorf("failed to create kuji service: %w", err)
	}

	kujiService.AuditorService.Start()

	//nolint:wrapcheck
	return kujiService.EchoService.Start()
}

func main() {
	//nolint:exhaustruct
	cmd := &cli.Command{
		Name: "kuji",
		Commands: []*cli.Command{
			{
				Name: "server",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   3000, //nolint:mnd
						Sources: cli.EnvVars("KUJI_PORT"),
					},
					&cli.StringFlag{
						Name:    "data-dir",
						Value:   "./kuji/data",
						Sources: cli.EnvVars("KUJI_DATA_DIR"),
					},
					&cli.StringFlag{
						Name:    "vault",
						Value:   "kuji-vault",
						Sources: cli.EnvVars("KUJI_VAULT"),
					},
					&cli.StringFlag{
						Name:    "custody-url",
						Sources: cli.EnvVars("KUJI_CUSTODY_URL"),
					},
					&cli.StringFlag{
						Name:    "oracle-url",
						Sources: cli.EnvVars("KUJI_ORACLE_URL"),
					},
					&cli.StringFlag{
						Name:    "admin",
						Sources: cli.EnvVars("KUJI_ADMIN"),
					},
					&cli.IntFlag{
						Name:    "rake-percent",
						Value:   5_000_000, //nolint:mnd // 5 % in probability units
						Sources: cli.EnvVars("KUJI_RAKE_PERCENT"),
					},
					&cli.StringFlag{
						Name:    "rake-recipient",
						Sources: cli.EnvVars("KUJI_RAKE_RECIPIENT"),
					},
					&cli.StringFlag{
						Name:    "oracle-key",
						Sources: cli.EnvVars("KUJI_ORACLE_KEY"),
					},
					&cli.IntFlag{
						Name:    "oracle-subscription",
						Value:   1,
						Sources: cli.EnvVars("KUJI_ORACLE_SUBSCRIPTION"),
					},
					&cli.IntFlag{
						Name:    "oracle-gas-limit",
						Value:   100_000, //nolint:mnd
						Sources: cli.EnvVars("KUJI_ORACLE_GAS_LIMIT"),
					},
					&cli.IntFlag{
						Name:    "oracle-confirmations",
						Value:   3, //nolint:mnd
						Sources: cli.EnvVars("KUJI_ORACLE_CONFIRMATIONS"),
					},
					&cli.IntFlag{
						Name:    "oracle-words",
						Value:   1,
						Sources: cli.EnvVars("KUJI_ORACLE_WORDS"),
					},
				},
				Action: runServer,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

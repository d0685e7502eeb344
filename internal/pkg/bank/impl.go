package bank

import (
	"fmt"
	"net/http"

	log "github.com/inconshreveable/log15"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/kuji"
	bolt "go.etcd.io/bbolt"
)

var blog = log.New("module", "kuji.bank")

// The ledger functions run inside a caller-supplied transaction so value
// movement commits or rolls back together with the rest of an entry point.

func balances(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(common.BalancesBucket))
	if b == nil {
		return nil, fmt.Errorf("bucket doesn't exist: %s", common.BalancesBucket)
	}

	return b, nil
}

func Balance(tx *bolt.Tx, account string) (uint64, error) {
	b, err := balances(tx)
	if err != nil {
		return 0, err
	}

	return common.BytesToUint64(b.Get([]byte(account)), 0), nil
}

func Deposit(tx *bolt.Tx, account string, amount uint64) error {
	b, err := balances(tx)
	if err != nil {
		return err
	}

	balance := common.BytesToUint64(b.Get([]byte(account)), 0)

	err = b.Put([]byte(account), common.Uint64ToBytes(balance+amount))
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", account, err)
	}

	return nil
}

func Transfer(tx *bolt.Tx, from string, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	b, err := balances(tx)
	if err != nil {
		return err
	}

	fromBalance := common.BytesToUint64(b.Get([]byte(from)), 0)
	if fromBalance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", kuji.ErrInsufficientFunds, from, fromBalance, amount)
	}

	// A self-transfer still requires the funds but moves nothing; debiting
	// and crediting the same key would double-count the stale read.
	if from == to {
		return nil
	}

	toBalance := common.BytesToUint64(b.Get([]byte(to)), 0)

	err = b.Put([]byte(from), common.Uint64ToBytes(fromBalance-amount))
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}

	err = b.Put([]byte(to), common.Uint64ToBytes(toBalance+amount))
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}

	return nil
}

type BankService struct {
	DatabaseService *common.DatabaseService
}

func NewBankService(i do.Injector) (*BankService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	result := &BankService{
		DatabaseService: databaseService,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		bankGroup := apiGroup.Group("/bank")

		bankGroup.POST("/deposits", result.PostDeposit)
		bankGroup.GET("/balances/:account", result.GetBalance)
	})

	return result, nil
}

// PostDeposit credits an identity. It is the admin-gated on-ramp for wager
// funds; the protocol itself never mints value elsewhere.
func (s *BankService) PostDeposit(c echo.Context) error {
	var request DepositRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if request.Account == "" || request.Amount == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "account and a positive amount are required")
	}

	var newBalance uint64

	err = s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		config, err := kuji.MustConfig(tx)
		if err != nil {
			return err
		}

		if request.Caller != config.Admin {
			return kuji.ErrUnauthorized
		}

		err = Deposit(tx, request.Account, request.Amount)
		if err != nil {
			return err
		}

		newBalance, err = Balance(tx, request.Account)

		return err
	})
	if err != nil {
		blog.Error("deposit rejected", "account", request.Account, "err", err)

		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	blog.Info("deposit", "account", request.Account, "amount", request.Amount)

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, BalanceResponse{Account: request.Account, Balance: newBalance})
}

func (s *BankService) GetBalance(c echo.Context) error {
	account := c.Param("account")

	var balance uint64

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		var err error

		balance, err = Balance(tx, account)

		return err
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read balance")
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, BalanceResponse{Account: account, Balance: balance}, "  ")
}

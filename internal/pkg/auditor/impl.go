package auditor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	log "github.com/inconshreveable/log15"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/kuji"
	bolt "go.etcd.io/bbolt"
)

var aulog = log.New("module", "kuji.auditor")

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// AuditorService drains the protocol's event stream into the events bucket
// and serves it to external indexers. Events arrive after the emitting entry
// point has committed, in commit order.
type AuditorService struct {
	DatabaseService *common.DatabaseService

	EventSource <-chan kuji.Event
}

func NewAuditorService(i do.Injector) (*AuditorService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSource := do.MustInvokeNamed[<-chan kuji.Event](i, "event-source")

	result := &AuditorService{
		DatabaseService: databaseService,
		EventSource:     eventSource,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		auditorGroup := apiGroup.Group("/auditor")

		auditorGroup.GET("/events", result.GetEvents)
	})

	return result, nil
}

func (s *AuditorService) Start() {
	go s.processEvents()
}

func (s *AuditorService) processEvents() {
	for event := range s.EventSource {
		s.HandleEvent(event)
	}
}

func (s *AuditorService) HandleEvent(event kuji.Event) {
	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		return AppendEvent(tx, &event)
	})
	if err != nil {
		aulog.Error("failed to record event", "id", event.ID, "type", event.Type, "err", err)

		return
	}

	aulog.Info("event", "id", event.ID, "type", event.Type)
}

func AppendEvent(tx *bolt.Tx, event *kuji.Event) error {
	b := tx.Bucket([]byte(common.EventsBucket))
	if b == nil {
		return fmt.Errorf("bucket doesn't exist: %s", common.EventsBucket)
	}

	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to advance event sequence: %w", err)
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	err = b.Put(common.Uint64ToBytes(seq), raw)
	if err != nil {
		return fmt.Errorf("failed to put event %s: %w", event.ID, err)
	}

	return nil
}

// ListEvents returns up to limit events, newest first.
func ListEvents(tx *bolt.Tx, limit int) ([]kuji.Event, error) {
	b := tx.Bucket([]byte(common.EventsBucket))
	if b == nil {
		return nil, fmt.Errorf("bucket doesn't exist: %s", common.EventsBucket)
	}

	result := make([]kuji.Event, 0, min(limit, maxQueryLimit))

	c := b.Cursor()
	for k, raw := c.Last(); k != nil && len(result) < limit; k, raw = c.Prev() {
		var event kuji.Event

		err := json.Unmarshal(raw, &event)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}

		result = append(result, event)
	}

	return result, nil
}

func (s *AuditorService) GetEvents(c echo.Context) error {
	limit := defaultQueryLimit

	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}

		// The limit caps the response size, never the allocation.
		limit = min(parsed, maxQueryLimit)
	}

	var events []kuji.Event

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		var err error

		events, err = ListEvents(tx, limit)

		return err
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read events")
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, events, "  ")
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shareprinto/dispatcher/config"
	"github.com/shareprinto/dispatcher/core/availability"
	"github.com/shareprinto/dispatcher/core/dispatch"
	"github.com/shareprinto/dispatcher/core/farmers"
	"github.com/shareprinto/dispatcher/core/model"
	"github.com/shareprinto/dispatcher/core/ranking"
	"github.com/shareprinto/dispatcher/infra/channel"
	"github.com/shareprinto/dispatcher/infra/logger"
	"github.com/shareprinto/dispatcher/internal/eventbus"
)

var (
	testFarmerID string
	testCity     string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Push a test offer through the configured channel",
	RunE:  dispatchTestOffer,
}

func init() {
	dispatchCmd.Flags().StringVar(&testFarmerID, "farmer", "test-farmer", "farmer id to offer to")
	dispatchCmd.Flags().StringVar(&testCity, "city", "Paris", "order city")
	rootCmd.AddCommand(dispatchCmd)
}

// dispatchTestOffer runs a single dispatch against one synthetic farmer so the
// broker wiring can be verified end to end.
func dispatchTestOffer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New("dispatch-command")
	ch, err := channel.NewMQTTChannel(cfg.Channel.MQTT)
	if err != nil {
		return fmt.Errorf("mqtt channel: %w", err)
	}
	defer ch.Close()

	registry := farmers.NewMemoryRegistry(model.Farmer{ID: testFarmerID, Name: testFarmerID, City: testCity, Rating: 5})
	avail := availability.NewMemoryStore()
	avail.Touch(testFarmerID, "")
	avail.SetAvailable(testFarmerID, true)

	resolver := ranking.StaticResolver(cfg.Cities)
	if _, ok := resolver.Locate(testCity); !ok {
		return fmt.Errorf("city %s is not configured", testCity)
	}
	ranker, err := ranking.NewRanker(registry, avail, resolver, cfg.Ranking)
	if err != nil {
		return fmt.Errorf("ranker: %w", err)
	}

	bus := eventbus.New()
	sched, err := dispatch.NewScheduler(ranker, ch, dispatch.NewMemoryOrderStore(), cfg.Dispatch.OfferTimeout(), nil, bus, logg)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer func() {
		if err := sched.Close(); err != nil {
			logg.Errorf("scheduler close: %v", err)
		}
	}()

	order := model.Order{
		ID:          uuid.NewString(),
		Description: "connectivity check",
		City:        testCity,
		CreatorName: "dispatcher-cli",
		Status:      model.OrderPending,
		CreatedAt:   time.Now(),
	}
	handle, err := sched.StartDispatch(ctx, order, ranking.Requirements{})
	if err != nil {
		return fmt.Errorf("start dispatch: %w", err)
	}
	logg.Infof("test offer for order %s pushed to %s, waiting for the run to finish", order.ID, testFarmerID)

	select {
	case <-handle.Done():
	case <-ctx.Done():
		return nil
	}
	st := handle.Status()
	logg.Infof("run finished %s after contacting %d candidate(s)", st.State, st.CandidatesContacted)
	return nil
}

// Command exchanged runs the exchange daemon: the matching engine, its
// session scheduler and the HTTP/websocket market data surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"exchange/internal/api"
	"exchange/internal/config"
	"exchange/internal/engine"
	"exchange/internal/feed"
	"exchange/internal/instrument"
	"exchange/internal/metrics"
	"exchange/internal/orderbook"
	"exchange/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file")
	seedPath := flag.String("seed", "", "JSON instrument file loaded into the instrument database before start")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("configuration", zap.Error(err))
	}
	settings, err := cfg.Engine.Settings()
	if err != nil {
		log.Fatal("engine configuration", zap.Error(err))
	}

	instruments, err := instrument.Open(cfg.Engine.InstrumentDBPath)
	if err != nil {
		log.Fatal("instrument database", zap.Error(err))
	}
	defer instruments.Close()

	if *seedPath != "" {
		if err := seedInstruments(instruments, *seedPath); err != nil {
			log.Fatal("seed instruments", zap.Error(err))
		}
		log.Info("instrument database seeded", zap.String("file", *seedPath))
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatal("deal history database", zap.Error(err))
	}
	defer st.Close()

	eng, err := engine.New(settings, nil, log)
	if err != nil {
		log.Fatal("engine", zap.Error(err))
	}

	var publisher *feed.Publisher
	if len(cfg.Feed.Brokers) > 0 {
		publisher = feed.NewPublisher(cfg.Feed.Brokers, cfg.Feed.Topic, log)
		defer publisher.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	var srv *api.Server
	m := metrics.New(registry, func() float64 {
		if srv == nil {
			return 0
		}
		var n int
		srv.WithEngine(func(e *engine.MatchingEngine) { n = e.MonitoredBookCount() })
		return float64(n)
	})

	hub := api.NewHub()
	fanout := &dealFanout{hub: hub, store: st, publisher: publisher, metrics: m, log: log}
	eng.SetDealObserver(fanout)

	if err := eng.LoadInstruments(instruments); err != nil {
		log.Fatal("load instruments", zap.Error(err))
	}

	srv = api.NewServer(eng, st, hub, m, registry, cfg.Server.CORSOrigins, log)
	httpSrv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: srv.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runSessionTicker(ctx, srv, hub, m)

	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}

// runSessionTicker drives the engine state machine once a second and
// broadcasts global phase changes.
func runSessionTicker(ctx context.Context, srv *api.Server, hub *api.Hub, m *metrics.Metrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var before, after orderbook.TradingPhase
			srv.WithEngine(func(e *engine.MatchingEngine) {
				before = e.GlobalPhase()
				e.EngineListen()
				after = e.GlobalPhase()
			})
			m.GlobalPhase.Set(float64(after))
			if after != before {
				hub.Broadcast(api.Event{Type: "phase", Payload: after.String()})
			}
		}
	}
}

// dealFanout distributes matching engine output to every sink: the audit
// trail, the websocket stream, metrics and the Kafka feed.
type dealFanout struct {
	hub       *api.Hub
	store     *store.Store
	publisher *feed.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func (f *dealFanout) OnDeal(instrumentID uint32, d *orderbook.Deal) {
	f.metrics.DealsTotal.Inc()
	f.metrics.DealVolumeTotal.Add(float64(d.Qty))
	if err := f.store.RecordDeal(instrumentID, d); err != nil {
		f.log.Error("deal audit write failed", zap.Error(err))
	}
	f.hub.Broadcast(api.Event{Type: "deal", InstrumentID: instrumentID, Payload: d})
	if f.publisher != nil {
		deal := *d
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := f.publisher.PublishDeal(ctx, instrumentID, &deal); err != nil {
				f.log.Error("deal publication failed",
					zap.String("reference", deal.Reference), zap.Error(err))
			}
		}()
	}
}

func (f *dealFanout) OnUnsolicitedCancelledOrder(instrumentID uint32, o orderbook.Order) {
	f.metrics.CancellationsTotal.Inc()
	if err := f.store.RecordCancellation(instrumentID, o); err != nil {
		f.log.Error("cancellation audit write failed", zap.Error(err))
	}
	f.hub.Broadcast(api.Event{Type: "cancel", InstrumentID: instrumentID, Payload: o})
}

type seedInstrument struct {
	Name       string `json:"name"`
	ISIN       string `json:"isin"`
	Currency   string `json:"currency"`
	ProductID  uint32 `json:"product_id"`
	ClosePrice uint32 `json:"close_price"`
}

// seedInstruments loads a JSON array of instruments into the referential.
func seedInstruments(m *instrument.Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seeds []seedInstrument
	if err := json.Unmarshal(data, &seeds); err != nil {
		return err
	}
	for _, s := range seeds {
		inst := instrument.Instrument{
			Name:       s.Name,
			ISIN:       s.ISIN,
			Currency:   s.Currency,
			ProductID:  s.ProductID,
			ClosePrice: orderbook.Price(s.ClosePrice),
		}
		if err := m.Write(inst, true); err != nil {
			return err
		}
	}
	return nil
}

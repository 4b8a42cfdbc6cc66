package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AaronLay10/ARTutor/internal/api"
	"github.com/AaronLay10/ARTutor/internal/catalog"
	"github.com/AaronLay10/ARTutor/internal/config"
	"github.com/AaronLay10/ARTutor/internal/engine"
	"github.com/AaronLay10/ARTutor/internal/events"
	"github.com/AaronLay10/ARTutor/internal/mqtt"
	"github.com/AaronLay10/ARTutor/internal/orchestrator"
	"github.com/AaronLay10/ARTutor/internal/scene"
	"github.com/AaronLay10/ARTutor/internal/storage/postgres"
	"github.com/AaronLay10/ARTutor/internal/surface"
	"github.com/AaronLay10/ARTutor/internal/version"
)

type LogLine struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func logEvent(level, event, msg string, fields map[string]interface{}) {
	line := LogLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Event:     event,
		Message:   msg,
		Fields:    fields,
	}
	b, _ := json.Marshal(line)
	fmt.Println(string(b))
}

func fatal(msg string, err error) {
	logEvent("error", "system.error", msg, map[string]interface{}{"error": err.Error()})
	os.Exit(1)
}

// Unset fields fall back to scene.DefaultOptions inside NewBuilder.
func builderOptions(cfg *config.AppConfig) scene.Options {
	return scene.Options{
		PatternURL:   cfg.Markers.PatternURL,
		BarcodeValue: cfg.Markers.BarcodeValue,
		Background:   cfg.Viewer.Background,
	}
}

func main() {
	configPath := flag.String("config", "configs/artutor.yaml", "path to artutor.yaml")
	flag.Parse()

	hostname, _ := os.Hostname()
	logEvent("info", "system.startup", "artutord starting", map[string]interface{}{
		"service":  version.Service,
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	instance := cfg.InstanceID()

	if cfg.Postgres.Enabled {
		pg, err := postgres.New(instance)
		if err != nil {
			// Events stay in the ring buffer.
			logEvent("error", "system.error", "postgres unavailable, continuing without event store",
				map[string]interface{}{"error": err.Error()})
			api.SetPostgresState(true, false)
		} else {
			defer pg.Close()
			events.SetPostgresClient(pg)
			api.SetPostgresState(true, true)
		}
	}

	cat := catalog.New()
	if cfg.Catalog.Path != "" {
		if err := cat.LoadFile(cfg.Catalog.Path); err != nil {
			fatal("failed to load model catalog", err)
		}
	}

	loader := engine.NewLoader(engine.Source{
		Name:    cfg.Engine.Name,
		Version: cfg.Engine.Version,
		URL:     cfg.Engine.URL,
		SHA256:  cfg.Engine.SHA256,
	}, engine.NewHTTPFetcher())
	loader.SetTimeout(cfg.EngineLoadTimeout())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		surf     surface.Surface
		memory   *surface.Memory
		mqttSurf *mqtt.Surface
		client   *mqtt.Client
	)
	topics := mqtt.TopicsFor(cfg.TopicPrefix())
	if cfg.MQTT.Enabled {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "artutor-" + instance
		}
		client = mqtt.NewClient(cfg.MQTT.Broker, clientID, topics.Status)
		mqttSurf = mqtt.NewSurface(client, topics)
		surf = mqttSurf
	} else {
		memory = surface.NewMemory()
		surf = memory
	}

	orch := orchestrator.New(orchestrator.Config{
		SceneReadyTimeout: cfg.SceneReadyTimeout(),
		SettleDelay:       cfg.SettleDelay(),
		DefaultModel:      cfg.DefaultModel(),
	}, loader, cat, scene.NewBuilder(builderOptions(cfg)), surf)
	orch.AddObserver(api.Counters())
	orch.SetSessionEndHandler(func() {
		logEvent("info", "session.ended", "host navigated away", map[string]interface{}{"instance": instance})
	})

	if mqttSurf != nil {
		mqttSurf.OnReady(orch.SceneReady)
		connected := client.Start(mqttSurf)
		api.SetMQTTState(true, connected)

		pub := mqtt.NewStatusPublisher(client, topics, orch.Status)
		orch.AddObserver(pub)
		go pub.Run(ctx)
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					api.SetMQTTState(true, client.IsConnected())
				}
			}
		}()
	}

	api.InitMetrics(instance)
	api.InitTLS()
	if err := api.InitAuth(); err != nil {
		fatal("failed to load API credentials", err)
	}

	srv := api.NewServer(cfg.HTTPPort(), api.Deps{
		Orchestrator: orch,
		Engine:       loader,
		Catalog:      cat,
		Surface:      memory,
	})
	api.Start(srv)

	events.Emit("info", "system.startup", "", map[string]interface{}{
		"instance":  instance,
		"engine":    loader.Source().ID(),
		"http_port": cfg.HTTPPort(),
		"mqtt":      cfg.MQTT.Enabled,
		"postgres":  cfg.Postgres.Enabled,
		"models":    cat.Keys(),
	})

	<-ctx.Done()

	orch.Teardown()
	events.Emit("info", "system.shutdown", "", map[string]interface{}{"instance": instance})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logEvent("error", "system.error", "http shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	events.CloseAllSubscribers()
	if !events.FlushPersisted(3 * time.Second) {
		logEvent("error", "system.error", "event store did not drain before exit", nil)
	}
	if client != nil {
		client.Disconnect()
	}
	logEvent("info", "system.shutdown", "artutord stopped", nil)
}

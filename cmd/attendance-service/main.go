package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"posresto/attendance-service/internal/config"
	"posresto/attendance-service/internal/httpapi"
	"posresto/attendance-service/internal/hub"
	"posresto/attendance-service/internal/store/postgres"
	"posresto/attendance-service/internal/telemetry"
	"posresto/attendance-service/internal/worker"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("attendance-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{QrTokenTTL: cfg.QrTokenTTL})
	liveHub := hub.New()

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		DevicePerMinute: cfg.DeviceLimitPerMinute,
		DeviceBurst:     cfg.DeviceLimitBurst,
	})
	handler := httpapi.NewHandler(st, httpapi.Options{ScanBaseURL: cfg.ScanBaseURL})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", handler.Routes())
	mux.Handle("/live/", liveBoardHandler(st, liveHub))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "attendance-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := worker.New(st, liveHub, worker.Config{
		BatchSize:   cfg.BatchSize,
		MaxAttempts: cfg.MaxAttempts,
		Provider:    cfg.Provider,
	})
	go worker.Start(ctx, cfg.PollInterval, notifier)

	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, sweepCancel := context.WithTimeout(ctx, 5*time.Second)
				count, err := st.MarkDevicesOffline(sweepCtx, time.Now().Add(-cfg.OfflineAfter))
				sweepCancel()
				if err != nil {
					log.Printf("offline sweep error: %v", err)
				} else if count > 0 {
					log.Printf("offline sweep marked %d devices", count)
				}
			}
		}
	}()

	go func() {
		log.Printf("attendance-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// liveBoardHandler serves the SockJS endpoint for manager live boards.
// The session authenticates the viewer; the subscription is pinned to
// the viewer's restaurant so no client can watch another tenant.
func liveBoardHandler(st *postgres.Store, liveHub *hub.Hub) http.Handler {
	return sockjs.NewHandler("/live", sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		sessionID := sessionIDFromRequest(req)
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		authSession, err := st.GetSession(context.Background(), sessionID)
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &hub.Client{
			ID:   uuid.NewString(),
			Send: make(chan []byte, 16),
			Subscription: hub.Subscription{
				TenantID: authSession.TenantID,
			},
		}
		liveHub.Register(client)
		defer liveHub.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			sub := hub.Subscription{TenantID: authSession.TenantID}
			if parsed.Action == "subscribe" {
				sub.UserID = parsed.UserID
			}
			liveHub.UpdateSubscription(client, sub)
		}
	})
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

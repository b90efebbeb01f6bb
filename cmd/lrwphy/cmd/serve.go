package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lorawan-server/lrwphy/internal/api"
	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/gateway"
	"github.com/lorawan-server/lrwphy/internal/integration"
	"github.com/lorawan-server/lrwphy/internal/models"
	"github.com/lorawan-server/lrwphy/internal/server"
	"github.com/lorawan-server/lrwphy/internal/storage"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var showConfig bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 REST API、NATS 订阅和网关 UDP 监听",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showConfig {
				opts.cfg.PrintConfigSummary(cmd.OutOrStdout())
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.cfg)
		},
	}

	cmd.Flags().BoolVar(&showConfig, "show-config", false, "显示配置并退出")
	return cmd
}

// openStore 连接数据库，未配置时使用内存存储
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Database.DSN == "" {
		log.Info().Msg("未配置数据库，解码记录保存在内存中")
		return storage.NewMemoryStore(10000), nil
	}

	store, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	log.Info().Msg("已连接到数据库")
	return store, nil
}

// newForwarders 创建集成转发器
func newForwarders(cfg config.IntegrationConfig) ([]server.Forwarder, func(), error) {
	var forwarders []server.Forwarder
	closeFn := func() {}

	if cfg.HTTP.Enabled {
		forwarders = append(forwarders, integration.NewHTTPForwarder(cfg.HTTP))
		log.Info().Str("endpoint", cfg.HTTP.Endpoint).Msg("HTTP 集成已启用")
	}

	if cfg.MQTT.Enabled {
		f, err := integration.NewMQTTForwarder(cfg.MQTT)
		if err != nil {
			return nil, closeFn, err
		}
		forwarders = append(forwarders, f)
		closeFn = f.Close
		log.Info().Str("broker", cfg.MQTT.BrokerURL).Msg("MQTT 集成已启用")
	}

	return forwarders, closeFn, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().Str("addr", cfg.API.Addr()).Msg("LoRaWAN PHY Decoder 启动中...")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := newService(cfg, store)
	if err != nil {
		return err
	}

	forwarders, closeForwarders, err := newForwarders(cfg.Integration)
	if err != nil {
		return err
	}
	defer closeForwarders()

	processor := server.NewProcessor(svc, cfg.NATS.ResultPrefix, forwarders...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 连接 NATS
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("lrwphy"),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
		)
		if err != nil {
			return err
		}
		defer nc.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("已连接到 NATS")
	}

	// 网关 UDP 监听
	var udp *gateway.UDPPacketForwarder
	if cfg.Gateway.UDPBind != "" {
		udp, err = gateway.NewUDPPacketForwarder(cfg.Gateway.UDPBind, func(ctx context.Context, rx *models.GatewayRXMessage) {
			msg, err := processor.Process(ctx, rx)
			if err != nil {
				log.Error().Err(err).Str("gateway", rx.GatewayID).Msg("处理网关上行失败")
				return
			}
			if nc == nil {
				return
			}
			b, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("序列化解码结果失败")
				return
			}
			if err := nc.Publish(processor.ResultSubject(rx.GatewayID), b); err != nil {
				log.Error().Err(err).Msg("发布到 NATS 失败")
			}
		})
		if err != nil {
			return err
		}
	}

	// 所有连接就绪后再启动后台任务
	errCh := make(chan error, 3)

	apiServer := api.NewRESTServer(cfg, svc)
	go func() {
		if err := apiServer.ListenAndServe(cfg.API.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if nc != nil {
		subscriber := server.NewNATSSubscriber(nc, processor, cfg.NATS)
		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	if udp != nil {
		go func() {
			if err := udp.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	// 等待退出信号
	select {
	case <-ctx.Done():
		log.Info().Msg("收到退出信号，正在关闭...")
	case err = <-errCh:
		log.Error().Err(err).Msg("服务异常退出")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := apiServer.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("关闭 API 服务失败")
	}

	log.Info().Msg("LoRaWAN PHY Decoder 已停止")
	return err
}


// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/dispatcher"
	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	_ "github.com/TheThingsNetwork/lora-field-gateway/handler/adafruitio"
	_ "github.com/TheThingsNetwork/lora-field-gateway/handler/azureiothub"
	_ "github.com/TheThingsNetwork/lora-field-gateway/handler/debug"
	_ "github.com/TheThingsNetwork/lora-field-gateway/handler/losant"
	_ "github.com/TheThingsNetwork/lora-field-gateway/handler/thingsboard"
	"github.com/TheThingsNetwork/lora-field-gateway/middleware/lorafilter"
	"github.com/TheThingsNetwork/lora-field-gateway/radio"
	"github.com/TheThingsNetwork/lora-field-gateway/status/statusserver"
	"github.com/TheThingsNetwork/lora-field-gateway/supervisor"
	"github.com/TheThingsNetwork/go-utils/handlers/cli"
	ttnlog "github.com/TheThingsNetwork/go-utils/log"
	"github.com/TheThingsNetwork/go-utils/log/apex"
	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	redis "gopkg.in/redis.v5"
)

// GatewayCmd is the main command that is executed when running lora-field-gateway
var GatewayCmd = &cobra.Command{
	Use:   "lora-field-gateway",
	Short: "LoRa field gateway",
	Long:  `lora-field-gateway bridges between a LoRa radio and an MQTT or AMQP broker`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logHandlers []log.Handler

		logHandlers = append(logHandlers, cli.New(os.Stdout))

		if logFileLocation := config.GetString("log-file"); logFileLocation != "" {
			absLogFileLocation, err := filepath.Abs(logFileLocation)
			if err != nil {
				panic(err)
			}
			logFile, err = os.OpenFile(absLogFileLocation, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
			if err != nil {
				panic(err)
			}
			logHandlers = append(logHandlers, json.New(logFile))
		}

		level := log.InfoLevel
		if config.GetBool("debug") {
			level = log.DebugLevel
		}

		ctx = &log.Logger{
			Level:   level,
			Handler: multi.New(logHandlers...),
		}
		ttnlog.Set(apex.Wrap(ctx))
	},
	Run: runGateway,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			time.Sleep(100 * time.Millisecond)
			logFile.Close()
		}
	},
}

func runGateway(cmd *cobra.Command, args []string) {
	if err := checkConfig(); err != nil {
		ctx.WithError(err).Fatal("Invalid configuration")
	}
	clientID := config.GetString("client-id")
	ctx := ctx.WithField("ClientID", clientID)

	handlerName := config.GetString("handler")
	h, err := handler.New(handlerName)
	if err != nil {
		ctx.WithError(err).WithField("Available", handler.Names()).Fatal("Could not create handler")
	}
	settings, err := handlerSettings(config.GetStringSlice("handler-setting"))
	if err != nil {
		ctx.WithError(err).Fatal("Invalid configuration")
	}

	broker, err := newBroker()
	if err != nil {
		ctx.WithError(err).Fatal("Could not create broker backend")
	}
	credentials, err := newCredentials()
	if err != nil {
		ctx.WithError(err).Fatal("Could not create broker credentials")
	}
	transceiver, err := newRadio()
	if err != nil {
		ctx.WithError(err).Fatal("Could not create radio backend")
	}

	var redisClient *redis.Client
	if config.GetBool("redis") {
		redisClient = newRedis()
	}
	done := make(chan struct{})
	chain, registry, closers := newMiddleware(redisClient, done)

	session := supervisor.New(ctx, broker)
	session.TLS = config.GetBool("broker-tls")
	if err := session.Start(config.GetString("broker-server"), credentials, clientID); err != nil {
		ctx.WithError(err).Fatal("Could not connect to broker")
	}

	if err := transceiver.Connect(); err != nil {
		ctx.WithError(err).Fatal("Could not connect to radio")
	}

	h = handler.Initialise(ctx, h, handler.Config{
		ClientID: clientID,
		Username: config.GetString("username"),
		Settings: settings,
	}, session)

	dispatcher.SilenceTimeout = config.GetDuration("silence-timeout")
	d := dispatcher.New(ctx, h, session, transceiver)
	d.Workers = config.GetInt("workers")
	d.SetMiddleware(chain)
	if err := d.Start(); err != nil {
		ctx.WithError(err).Fatal("Could not start dispatcher")
	}

	if address := config.GetString("http-address"); address != "" {
		statusserver.SetHandler(handlerName)
		statusserver.SetSession(func() string { return session.State().String() })
		statusserver.SetDevices(registry.List)
		for _, key := range config.GetStringSlice("status-key") {
			statusserver.AddAccessKey(key)
		}
		mux := http.NewServeMux()
		statusserver.Register(mux)
		go func() {
			ctx.WithField("Address", address).Info("Starting status server")
			if err := http.ListenAndServe(address, mux); err != nil {
				ctx.WithError(err).Error("Status server stopped")
			}
		}()
	}

	ctx.WithField("Handler", handlerName).Info("Gateway started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ctx.WithField("signal", <-sigChan).Info("signal received")

	d.Stop()
	session.Stop()
	if err := transceiver.Disconnect(); err != nil {
		ctx.WithError(err).Warn("Could not disconnect from radio")
	}
	close(done)
	closers.Close()
	if redisClient != nil {
		redisClient.Close()
	}
}

func init() {
	GatewayCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Location of the config file")
	GatewayCmd.PersistentFlags().Bool("debug", false, "Print debug logs")
	GatewayCmd.PersistentFlags().String("log-file", "", "Location of the log file")

	GatewayCmd.Flags().String("handler", "", "Handler that translates between radio and broker (see \"lora-field-gateway handlers\")")
	GatewayCmd.Flags().StringSlice("handler-setting", nil, "Handler setting as key=value")
	GatewayCmd.Flags().Int("workers", dispatcher.Workers, "Number of workers per event source")
	GatewayCmd.Flags().Duration("silence-timeout", dispatcher.SilenceTimeout, "Warn when no packets are received for this long (0 to disable)")

	GatewayCmd.Flags().String("broker-type", "mqtt", "Broker type (mqtt, amqp or dummy)")
	GatewayCmd.Flags().String("broker-server", "", "Broker host[:port]")
	GatewayCmd.Flags().Bool("broker-tls", false, "Connect to the broker over TLS")
	GatewayCmd.Flags().String("client-id", "", "Client ID (defaults to the hostname)")
	GatewayCmd.Flags().String("auth", "static", "Broker authentication (static or azure-sas)")
	GatewayCmd.Flags().String("username", "", "Broker username")
	GatewayCmd.Flags().String("password", "", "Broker password")
	GatewayCmd.Flags().String("azure-hub", "", "Azure IoT Hub host name (defaults to the broker server)")
	GatewayCmd.Flags().String("azure-key", "", "Azure IoT Hub device key (base64)")
	GatewayCmd.Flags().Duration("azure-sas-ttl", 0, "Lifetime of Azure IoT Hub SAS tokens")
	GatewayCmd.Flags().String("amqp-vhost", "", "AMQP virtual host")
	GatewayCmd.Flags().String("amqp-exchange", "amq.topic", "AMQP topic exchange")

	defaults := radio.DefaultConfig()
	GatewayCmd.Flags().String("radio-profile", "rylr896", "Radio board profile (see \"lora-field-gateway profiles\") or dummy")
	GatewayCmd.Flags().String("radio-port", "", "Serial port of UART radios (defaults to the profile port)")
	GatewayCmd.Flags().Int("radio-baud", 0, "Baud rate of UART radios (defaults to the profile baud rate)")
	GatewayCmd.Flags().String("radio-address", "", "Address of the gateway radio")
	GatewayCmd.Flags().Int("network-id", 0, "Network ID of UART radios")
	GatewayCmd.Flags().Int("frequency", int(defaults.Frequency), "Frequency in Hz")
	GatewayCmd.Flags().Int("sf", defaults.SpreadingFactor, "Spreading factor")
	GatewayCmd.Flags().Int("bw", defaults.Bandwidth, "Bandwidth in Hz")
	GatewayCmd.Flags().Int("cr", defaults.CodingRate, "Coding rate denominator (4/x)")
	GatewayCmd.Flags().Int("power", defaults.Power, "Transmit power in dBm")
	GatewayCmd.Flags().Int("sync-word", int(defaults.SyncWord), "Sync word")
	GatewayCmd.Flags().Int("preamble", defaults.PreambleLength, "Preamble length")

	GatewayCmd.Flags().Bool("redis", false, "Use Redis for device state and rate limits")
	GatewayCmd.Flags().String("redis-address", "localhost:6379", "Redis host and port")
	GatewayCmd.Flags().String("redis-password", "", "Redis password")
	GatewayCmd.Flags().Int("redis-db", 0, "Redis database")
	GatewayCmd.Flags().String("redis-devices-key", "", "Redis key of the device registry")

	GatewayCmd.Flags().StringSlice("blacklist", nil, "Device blacklists (files or http(s) URLs)")
	GatewayCmd.Flags().Duration("blacklist-refresh", 10*time.Minute, "Interval for fetching remote blacklists")
	GatewayCmd.Flags().Int("min-rssi", lorafilter.DefaultMinRSSI, "Drop packets received below this RSSI (dBm)")
	GatewayCmd.Flags().Float64("min-snr", lorafilter.DefaultMinSNR, "Drop packets received below this SNR (dB)")
	GatewayCmd.Flags().Duration("dedup-window", 0, "Drop repeated packets within this window (0 to disable)")
	GatewayCmd.Flags().Int("ratelimit-uplink", 0, "Maximum packets per device per minute (0 to disable)")
	GatewayCmd.Flags().Int("ratelimit-downlink", 0, "Maximum transmissions per device per minute (0 to disable)")

	GatewayCmd.Flags().String("influx-url", "", "InfluxDB URL for radio telemetry")
	GatewayCmd.Flags().String("influx-token", "", "InfluxDB token")
	GatewayCmd.Flags().String("influx-org", "", "InfluxDB organization")
	GatewayCmd.Flags().String("influx-bucket", "gateway", "InfluxDB bucket")

	GatewayCmd.Flags().String("http-address", "localhost:8080", "Address of the status server (empty to disable)")
	GatewayCmd.Flags().StringSlice("status-key", nil, "Access keys for the status server")

	viper.BindPFlags(GatewayCmd.Flags())
	viper.BindPFlags(GatewayCmd.PersistentFlags())
}

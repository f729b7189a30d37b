package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumastream/coinledger/internal/config"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "coinledger").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get("request_id")
		reqIDStr, _ := requestID.(string)

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", reqIDStr).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogLedgerEntry logs a balance mutation together with its appended
// transaction row
func LogLedgerEntry(txType, accountID string, amount, balanceAfter int64) {
	log.Info().
		Str("tx_type", txType).
		Str("account_id", accountID).
		Int64("amount", amount).
		Int64("balance_after", balanceAfter).
		Msg("Ledger entry")
}

// LogPaymentEvent logs an inbound payment-provider event
func LogPaymentEvent(paymentReference, outcome, result string, coinsGranted int64) {
	event := log.Info()
	if result == "error" {
		event = log.Error()
	}
	event.
		Str("payment_reference", paymentReference).
		Str("outcome", outcome).
		Str("result", result).
		Int64("coins_granted", coinsGranted).
		Msg("Payment event")
}

// LogRedemption logs a redemption lifecycle event
func LogRedemption(requestID, creatorID, status, resolvedBy string, amountCoins int64) {
	log.Info().
		Str("redemption_id", requestID).
		Str("creator_id", creatorID).
		Str("status", status).
		Str("resolved_by", resolvedBy).
		Int64("amount_coins", amountCoins).
		Msg("Redemption event")
}

// LogStrandedReceipt flags a receipt that was durably recorded without its
// credit landing; this is the manual-reconciliation failure mode.
func LogStrandedReceipt(paymentReference string, err error) {
	log.Error().
		Err(err).
		Str("payment_reference", paymentReference).
		Msg("Receipt recorded without credit, needs reconciliation")
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"token-alerts/internal/domain"
	"token-alerts/internal/queue"
)

const signatureHeader = "x-signature"

// JobQueue is the part of the durable queue the gateway needs.
type JobQueue interface {
	Enqueue(ctx context.Context, jobs ...domain.Job) error
	Stats(ctx context.Context) (queue.Stats, error)
}

// Options configure the gateway.
type Options struct {
	Path        string
	Secret      string
	DevMode     bool
	QuoteTokens []string
	Classifier  *Classifier
	Now         func() time.Time
	NewID       func() string
}

// Gateway validates, classifies and enqueues inbound webhooks.
type Gateway struct {
	opts   Options
	queue  JobQueue
	quotes map[string]struct{}
	logger zerolog.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(opts Options, q JobQueue, logger zerolog.Logger) *Gateway {
	if opts.Path == "" {
		opts.Path = "/process"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(ClassifierOptions{})
	}
	return &Gateway{
		opts:   opts,
		queue:  q,
		quotes: addressSet(opts.QuoteTokens),
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

// Router builds the HTTP handler.
func (g *Gateway) Router() *gin.Engine {
	if !g.opts.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(g.requestLogger())

	r.POST(g.opts.Path, g.handleWebhook)
	r.GET("/health", g.handleHealth)
	return r
}

func (g *Gateway) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		g.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

func respond(c *gin.Context, status int, message string) {
	body := gin.H{"status": "success", "message": message}
	if status >= http.StatusBadRequest {
		body["status"] = "error"
	}
	c.JSON(status, body)
}

func (g *Gateway) handleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respond(c, http.StatusBadRequest, "Could not read body")
		return
	}

	if g.opts.DevMode {
		g.logger.Debug().Msg("dev mode: signature verification skipped")
	} else if !VerifySignature(body, c.GetHeader(signatureHeader), g.opts.Secret) {
		g.logger.Warn().Str("remote", c.ClientIP()).Msg("webhook signature rejected")
		respond(c, http.StatusOK, "Received")
		return
	}

	if len(body) == 0 {
		respond(c, http.StatusBadRequest, "No data received")
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		g.logger.Warn().Err(err).Msg("malformed webhook payload")
		respond(c, http.StatusOK, "Malformed payload")
		return
	}
	g.logger.Debug().RawJSON("payload", body).Msg("webhook received")

	// Streams deliver each block twice; only the confirmed copy is processed.
	if !payload.Confirmed {
		respond(c, http.StatusOK, "Block not confirmed")
		return
	}

	eventType := g.opts.Classifier.Classify(payload)
	if eventType == domain.EventUnknown {
		respond(c, http.StatusOK, "Unknown event type")
		return
	}

	jobs, err := g.BuildJobs(payload, eventType, body)
	if err != nil {
		if errors.Is(err, ErrNoAddresses) {
			respond(c, http.StatusOK, "No addresses found")
			return
		}
		g.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("could not decode event")
		respond(c, http.StatusOK, "Could not decode event")
		return
	}

	if err := g.queue.Enqueue(c.Request.Context(), jobs...); err != nil {
		g.logger.Error().Err(err).
			Str("event_type", string(eventType)).
			RawJSON("payload", body).
			Msg("enqueue failed; webhook dropped")
		respond(c, http.StatusOK, "Received")
		return
	}

	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.EventID)
	}
	g.logger.Info().Str("event_type", string(eventType)).Strs("event_ids", ids).Msg("webhook accepted")
	c.JSON(http.StatusAccepted, gin.H{
		"status":        "accepted",
		"event_type":    eventType,
		"queued_events": ids,
	})
}

// BuildJobs turns a classified payload into queue jobs: one per distinct log
// address for new_token and ownership_renounced, exactly one otherwise.
func (g *Gateway) BuildJobs(p Payload, eventType domain.EventType, body []byte) ([]domain.Job, error) {
	base := p.ID
	if base == "" {
		base = g.opts.NewID()
	}
	template := domain.Job{
		EventType:   eventType,
		ChainID:     p.ChainID,
		BlockNumber: p.Block.Number,
		ReceivedAt:  g.opts.Now().UTC(),
	}

	switch eventType {
	case domain.EventNewToken, domain.EventOwnershipRenounced:
		addresses := ExtractAddresses(p.Logs)
		if len(addresses) == 0 {
			return nil, ErrNoAddresses
		}
		jobs := make([]domain.Job, 0, len(addresses))
		for _, addr := range addresses {
			job := template
			job.EventID = base + "_" + addr
			if eventType == domain.EventNewToken {
				job.Address = addr
				raw, err := json.Marshal(struct {
					Logs    []Log  `json:"logs"`
					Block   Block  `json:"block"`
					ChainID string `json:"chainId"`
				}{logsFor(p.Logs, addr), p.Block, p.ChainID})
				if err != nil {
					return nil, err
				}
				job.RawData = raw
			} else {
				job.TokenAddress = addr
			}
			jobs = append(jobs, job)
		}
		return jobs, nil

	case domain.EventNewPair:
		if len(p.Logs) == 0 {
			return nil, ErrNoAddresses
		}
		token, pair, err := DecodePairCreated(p.Logs[0], g.quotes)
		if err != nil {
			return nil, err
		}
		job := template
		job.EventID = base
		job.TokenAddress = token
		job.PairAddress = pair
		job.RawData = json.RawMessage(body)
		return []domain.Job{job}, nil

	case domain.EventLockLP:
		tx := p.Txs[0]
		lock, err := DecodeLockInput(tx.Input)
		if err != nil {
			return nil, err
		}
		lock.TxHash = tx.Hash
		lock.Locker = tx.ToAddress
		lock.Owner = tx.FromAddress

		job := template
		job.EventID = base
		job.PairAddress = lock.LPToken
		job.Lock = &lock
		job.RawData = json.RawMessage(body)
		return []domain.Job{job}, nil

	default:
		return nil, errors.New("webhook: event type has no job mapping")
	}
}

func (g *Gateway) handleHealth(c *gin.Context) {
	mode := "production"
	if g.opts.DevMode {
		mode = "development"
	}

	stats, err := g.queue.Stats(c.Request.Context())
	if err != nil {
		g.logger.Error().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "mode": mode})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                  "healthy",
		"mode":                    mode,
		"queue_size":              stats.Queue,
		"retry_queue_size":        stats.Retry,
		"failed_events":           stats.Failed,
		"notification_queue_size": stats.Notifications,
		"timestamp":               g.opts.Now().UTC().Format(time.RFC3339),
	})
}

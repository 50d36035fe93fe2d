package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nyxsignal/oracle/internal/storage/cache"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/sirupsen/logrus"
)

// Pipeline gère les flux de traitement des données
type Pipeline struct {
	cache      *cache.Redis
	logger     *logrus.Logger
	processors map[string]Processor
	stopped    bool
}

// Processor est une interface pour les processeurs de messages
type Processor interface {
	Process(message Message) error
	GetName() string
}

// Message représente un message à traiter dans le pipeline
type Message struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// NewPipeline crée un nouveau pipeline
func NewPipeline(cache *cache.Redis, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		cache:      cache,
		logger:     logger,
		processors: make(map[string]Processor),
		stopped:    true,
	}
}

// Start démarre le pipeline
func (p *Pipeline) Start(ctx context.Context) error {
	p.logger.Info("Starting Pipeline")
	p.stopped = false

	// Démarrer les goroutines de consommation pour chaque processeur
	for name, processor := range p.processors {
		go p.startConsumer(ctx, name, processor)
	}

	return nil
}

// Shutdown arrête le pipeline
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.logger.Info("Shutting down Pipeline")
	p.stopped = true
	// Attendre que les goroutines se terminent
	time.Sleep(500 * time.Millisecond)
	return nil
}

// RegisterProcessor enregistre un processeur de messages
func (p *Pipeline) RegisterProcessor(processor Processor) {
	p.processors[processor.GetName()] = processor
	p.logger.WithFields(logrus.Fields{
		"processor": processor.GetName(),
	}).Info("Processor registered")
}

// PublishMessage publie un message dans un stream
func (p *Pipeline) PublishMessage(streamName string, message Message) error {
	// Ajouter un ID si non fourni
	if message.ID == "" {
		message.ID = fmt.Sprintf("msg_%d", time.Now().UnixNano())
	}

	// Ajouter timestamp si non fourni
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	// Sérialiser tout le message en JSON d'abord
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Désérialiser en map pour Redis
	var messageMap map[string]interface{}
	if err := json.Unmarshal(jsonData, &messageMap); err != nil {
		return fmt.Errorf("failed to unmarshal message to map: %w", err)
	}

	// Traiter spécifiquement les structures complexes
	for k, v := range messageMap {
		// Si c'est une structure complexe (map ou slice), la resérialiser en JSON
		switch val := v.(type) {
		case map[string]interface{}, []interface{}:
			jsonBytes, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("failed to marshal nested data: %w", err)
			}
			messageMap[k] = string(jsonBytes)
		}
	}

	// Publier dans Redis Stream
	err = p.cache.XAdd(streamName, messageMap)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"stream": streamName,
		"msg_id": message.ID,
		"type":   message.Type,
	}).Debug("Message published")

	return nil
}

// startConsumer démarre un consumer pour un processeur spécifique
func (p *Pipeline) startConsumer(ctx context.Context, streamName string, processor Processor) {
	p.logger.WithFields(logrus.Fields{
		"stream":    streamName,
		"processor": processor.GetName(),
	}).Info("Starting consumer")

	// Créer un consumer group si n'existe pas
	err := p.cache.XGroupCreate(streamName, processor.GetName())
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		p.logger.WithFields(logrus.Fields{
			"stream":    streamName,
			"processor": processor.GetName(),
			"error":     err.Error(),
		}).Error("Failed to create consumer group")
		return
	}

	// Boucle de consommation
	for !p.stopped {
		select {
		case <-ctx.Done():
			return
		default:
			// Lire les messages
			messages, err := p.cache.XReadGroup(streamName, processor.GetName(), "consumer1", 10, 1*time.Second)
			if err != nil {
				// Ignorer les timeouts (cas normal quand pas de messages)
				if err.Error() != "redis: nil" {
					p.logger.WithFields(logrus.Fields{
						"stream":    streamName,
						"processor": processor.GetName(),
						"error":     err.Error(),
					}).Error("Error reading from stream")
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}

			// Traiter chaque message
			for _, msg := range messages {
				message := Message{
					ID:        msg.ID,
					Timestamp: time.Now(),
					Payload:   make(map[string]interface{}),
				}

				// Extraire les champs du message
				for k, v := range msg.Values {
					if k == "type" {
						message.Type = v.(string)
					} else if k == "timestamp" {
						// Détecter si c'est un timestamp sous forme de string ou un unix timestamp
						switch tv := v.(type) {
						case string:
							ts, err := time.Parse(time.RFC3339, tv)
							if err == nil {
								message.Timestamp = ts
							}
						case float64:
							message.Timestamp = time.Unix(int64(tv), 0)
						}
					} else {
						// Pour les autres champs, vérifier si c'est du JSON sérialisé
						if strVal, ok := v.(string); ok && (strings.HasPrefix(strVal, "{") || strings.HasPrefix(strVal, "[")) {
							// Tenter de désérialiser le JSON
							var obj interface{}
							if err := json.Unmarshal([]byte(strVal), &obj); err == nil {
								// Si c'est bien du JSON, l'ajouter tel quel
								message.Payload[k] = obj
							} else {
								// Sinon ajouter comme string
								message.Payload[k] = strVal
							}
						} else {
							// Ajouter directement si ce n'est pas un JSON sérialisé
							message.Payload[k] = v
						}
					}
				}

				// Traiter le message
				err := processor.Process(message)
				if err != nil {
					p.logger.WithFields(logrus.Fields{
						"stream":    streamName,
						"processor": processor.GetName(),
						"msg_id":    msg.ID,
						"error":     err.Error(),
					}).Error("Error processing message")
					// Ne pas ACK, sera retraité
					continue
				}

				// ACK si traité avec succès
				err = p.cache.XAck(streamName, processor.GetName(), msg.ID)
				if err != nil {
					p.logger.WithFields(logrus.Fields{
						"stream":    streamName,
						"processor": processor.GetName(),
						"msg_id":    msg.ID,
						"error":     err.Error(),
					}).Error("Error acknowledging message")
				}
			}
		}
	}
}

// SignalMirrorProcessor mirrors emitted Signals onto the "signals" stream so
// out-of-scope downstream collaborators (dashboard, executor) can each track
// their own consumer-group offset independently of the Store (§1 Out of
// scope collaborators; §6 Notifier is fire-and-forget, this is durable).
type SignalMirrorProcessor struct {
	name   string
	logger *logrus.Logger
}

// NewSignalMirrorProcessor builds a SignalMirrorProcessor.
func NewSignalMirrorProcessor(logger *logrus.Logger) *SignalMirrorProcessor {
	return &SignalMirrorProcessor{name: "signals", logger: logger}
}

// Process implements Processor: it only logs, since downstream consumers
// read directly off the "signals" stream this pipeline publishes to via
// PublishMessage — this processor exists to ack/consume the same stream so
// an operator can see last-processed offset via a consumer group.
func (p *SignalMirrorProcessor) Process(message Message) error {
	tokenAddress, _ := message.Payload["token_address"].(string)
	p.logger.WithFields(logrus.Fields{
		"msg_id":        message.ID,
		"token_address": tokenAddress,
	}).Debug("Mirrored signal observed")
	return nil
}

// GetName implements Processor.
func (p *SignalMirrorProcessor) GetName() string {
	return p.name
}

// PublishSignal publishes a passed Signal onto the "signals" stream (§2 data
// flow's terminal "Notifier" step, mirrored here for durable fan-out).
func (p *Pipeline) PublishSignal(sig models.Signal) error {
	return p.PublishMessage("signals", Message{
		Type: "signal",
		Payload: map[string]interface{}{
			"token_address":       sig.TokenAddress,
			"instability_index":   sig.InstabilityIndex,
			"entry_price":         sig.EntryPrice,
			"bayesian_confidence": sig.BayesianConfidence,
			"kelly_size":          sig.KellySize,
		},
	})
}

// GetRedisClient retourne le client Redis du pipeline
func (p *Pipeline) GetRedisClient() *cache.Redis {
	return p.cache
} 
// pkg/pubsub/client.go
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/logger"
)

const orderIDAttribute = "order_id"

// Client is a Google Cloud Pub/Sub backed bus.Transport. Each saga topic is
// read through the subscription named by config.PubSubConfig.SubscriptionFor.
type Client struct {
	client    *pubsub.Client
	projectID string
	group     string
	cfg       config.PubSubConfig
	logg      *logger.Logger

	mu            sync.Mutex
	publishers    map[string]*pubsub.Publisher
	subscriptions []string
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient creates a Pub/Sub v2 client for the given consumer group.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, group string, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  gcp.ProjectID,
		group:      group,
		cfg:        cfg,
		logg:       logg,
		publishers: map[string]*pubsub.Publisher{},
	}

	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}

	return c, nil
}

func (c *Client) ensureSubscriptionExists(ctx context.Context, name string) error {
	fullName := c.subscriptionResourceName(name)
	if fullName == "" {
		return fmt.Errorf("subscription %q not configured", name)
	}

	_, err := c.client.SubscriptionAdminClient.GetSubscription(
		ctx,
		&pubsubpb.GetSubscriptionRequest{Subscription: fullName},
	)
	if err != nil {
		// v2 uses gRPC errors; NotFound means the subscription doesn't exist.
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", name)
		}
		return fmt.Errorf("checking subscription %q: %w", name, err)
	}

	return nil
}

// Subscription returns a v2 Subscriber handle for the configured subscription name (ID or full resource name).
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.subscriptionResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// Publisher returns a cached publisher handle for the given topic ID/resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[fullName]; ok {
		return p
	}
	p := c.client.Publisher(fullName)
	c.publishers[fullName] = p
	return p
}

// Publish sends msg and waits for the server acknowledgement.
func (c *Client) Publish(ctx context.Context, msg bus.Message) error {
	pub := c.Publisher(msg.Topic)
	if pub == nil {
		return fmt.Errorf("topic %q not configured", msg.Topic)
	}
	res := pub.Publish(ctx, &pubsub.Message{
		Data:       msg.Data,
		Attributes: map[string]string{orderIDAttribute: msg.Key},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publishing to %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe receives from the subscription of every topic concurrently.
// The first handler error nacks its message, stops all receivers and is
// returned.
func (c *Client) Subscribe(ctx context.Context, topics []string, h bus.Handler) error {
	if len(topics) == 0 {
		return errors.New("at least one topic is required")
	}

	subs := make(map[string]*pubsub.Subscriber, len(topics))
	for _, topic := range topics {
		name := c.cfg.SubscriptionFor(topic, c.group)
		if err := c.ensureSubscriptionExists(ctx, name); err != nil {
			return err
		}
		subs[topic] = c.Subscription(name)
		c.mu.Lock()
		c.subscriptions = append(c.subscriptions, name)
		c.mu.Unlock()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once       sync.Once
		handlerErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	for topic, sub := range subs {
		g.Go(func() error {
			return sub.Receive(gctx, func(msgCtx context.Context, m *pubsub.Message) {
				err := h(msgCtx, bus.Message{Topic: topic, Key: m.Attributes[orderIDAttribute], Data: m.Data})
				if err != nil {
					m.Nack()
					once.Do(func() {
						handlerErr = bus.HandlerError(topic, err)
						cancel()
					})
					return
				}
				m.Ack()
			})
		})
	}

	err := g.Wait()
	if handlerErr != nil {
		return handlerErr
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receiving from pubsub: %w", err)
	}
	return nil
}

// Ping verifies Pub/Sub connectivity by checking the subscriptions in use still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	c.mu.Lock()
	names := append([]string(nil), c.subscriptions...)
	c.mu.Unlock()
	for _, name := range names {
		if err := c.ensureSubscriptionExists(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes publishers and releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, p := range c.publishers {
		p.Stop()
	}
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}

	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/subscriptions/") {
		return n
	}

	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/subscriptions/%s", p, n)
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}

package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	run "cloud.google.com/go/run/apiv2"
	runpb "cloud.google.com/go/run/apiv2/runpb"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/spawn-mcp/adshipper/pkg/logger"
)

// Client wraps all GCP service clients
type Client struct {
	ProjectID       string
	Region          string
	JobsClient      *run.JobsClient
	FirestoreClient *firestore.Client
	PubSubClient    *pubsub.Client
	StorageClient   *storage.Client
	log             logger.Logger
}

// NewClient creates a new GCP client with all necessary services
func NewClient(ctx context.Context, projectID, region string, log logger.Logger, opts ...option.ClientOption) (*Client, error) {
	jobsClient, err := run.NewJobsClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Run jobs client: %w", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		jobsClient.Close()
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		jobsClient.Close()
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		jobsClient.Close()
		firestoreClient.Close()
		pubsubClient.Close()
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	return &Client{
		ProjectID:       projectID,
		Region:          region,
		JobsClient:      jobsClient,
		FirestoreClient: firestoreClient,
		PubSubClient:    pubsubClient,
		StorageClient:   storageClient,
		log:             log,
	}, nil
}

// Close closes all GCP clients
func (c *Client) Close() error {
	var errs []error

	if err := c.JobsClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close Cloud Run client: %w", err))
	}
	if err := c.FirestoreClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close Firestore client: %w", err))
	}
	if err := c.PubSubClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close Pub/Sub client: %w", err))
	}
	if err := c.StorageClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close Storage client: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing clients: %v", errs)
	}
	return nil
}

// TriggerWorker starts an execution of the Cloud Run job that drains the
// job queue. It returns once the execution has been accepted.
func (c *Client) TriggerWorker(ctx context.Context, jobName string, env map[string]string, timeout time.Duration) (string, error) {
	var envVars []*runpb.EnvVar
	for key, value := range env {
		envVars = append(envVars, &runpb.EnvVar{
			Name:   key,
			Values: &runpb.EnvVar_Value{Value: value},
		})
	}

	req := &runpb.RunJobRequest{
		Name: c.jobPath(jobName),
		Overrides: &runpb.RunJobRequest_Overrides{
			ContainerOverrides: []*runpb.RunJobRequest_Overrides_ContainerOverride{
				{Env: envVars},
			},
			TaskCount: 1,
			Timeout:   durationpb.New(timeout),
		},
	}

	op, err := c.JobsClient.RunJob(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to run Cloud Run job: %w", err)
	}

	meta, err := op.Metadata()
	if err != nil || meta == nil {
		c.log.Info("Worker execution started", logger.String("job", jobName))
		return op.Name(), nil
	}
	c.log.Info("Worker execution started",
		logger.String("job", jobName),
		logger.String("execution", meta.GetName()),
	)
	return meta.GetName(), nil
}

func (c *Client) jobPath(jobName string) string {
	return fmt.Sprintf("projects/%s/locations/%s/jobs/%s", c.ProjectID, c.Region, jobName)
}

// PublishMessage publishes a message to a Pub/Sub topic, creating the topic
// on first use.
func (c *Client) PublishMessage(ctx context.Context, topicName string, data []byte, attributes map[string]string) error {
	topic := c.PubSubClient.Topic(topicName)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check topic existence: %w", err)
	}
	if !exists {
		if _, err = c.PubSubClient.CreateTopic(ctx, topicName); err != nil {
			return fmt.Errorf("failed to create topic: %w", err)
		}
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	if _, err = result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// SubscribeToTopic receives messages until ctx is done. The callback owns
// Ack and Nack.
func (c *Client) SubscribeToTopic(ctx context.Context, subscriptionName string, maxOutstanding int, callback func(ctx context.Context, msg *pubsub.Message)) error {
	sub := c.PubSubClient.Subscription(subscriptionName)

	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check subscription existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("subscription %s does not exist", subscriptionName)
	}

	sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding

	if err = sub.Receive(ctx, callback); err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}
	return nil
}

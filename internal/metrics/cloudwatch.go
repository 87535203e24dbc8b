package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatch metric and dimension names.
const (
	MetricRequest           = "Request"
	MetricRequestLatency    = "RequestLatency"
	MetricRateLimitDenied   = "RateLimitDenied"
	MetricQuotaDenied       = "QuotaDenied"
	MetricUsageRecordFailed = "UsageRecordFailed"

	DimRoute   = "Route"
	DimStatus  = "StatusClass"
	DimLimiter = "Limiter"
	DimFeature = "Feature"
	DimReason  = "Reason"
)

const (
	cloudWatchBatchSize = 500
	cloudWatchBuffer    = 5000
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch buffers datums in memory and publishes them in batches from
// Run, keeping PutMetricData off the request path. Datums arriving while the
// buffer is full are dropped.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
	dropped int
}

// NewCloudWatch creates a CloudWatch recorder publishing to namespace.
func NewCloudWatch(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		logger:    logger,
		now:       time.Now,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func (c *CloudWatch) add(d cwtypes.MetricDatum) {
	d.Timestamp = aws.Time(c.now())
	c.mu.Lock()
	if len(c.pending) >= cloudWatchBuffer {
		c.dropped++
	} else {
		c.pending = append(c.pending, d)
	}
	c.mu.Unlock()
}

func (c *CloudWatch) ObserveRequest(_ context.Context, route, _ string, status int, d time.Duration) {
	class := strconv.Itoa(status/100) + "xx"
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String(MetricRequest),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(DimRoute, route), dim(DimStatus, class)},
	})
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String(MetricRequestLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{dim(DimRoute, route)},
	})
}

func (c *CloudWatch) RateLimitDenied(_ context.Context, limiter string) {
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String(MetricRateLimitDenied),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(DimLimiter, limiter)},
	})
}

func (c *CloudWatch) QuotaDenied(_ context.Context, feature, reason string) {
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String(MetricQuotaDenied),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(DimFeature, feature), dim(DimReason, reason)},
	})
}

func (c *CloudWatch) UsageRecordFailed(_ context.Context, feature string) {
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String(MetricUsageRecordFailed),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(DimFeature, feature)},
	})
}

// Flush publishes everything buffered so far.
func (c *CloudWatch) Flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.pending
	dropped := c.dropped
	c.pending = nil
	c.dropped = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.WarnContext(ctx, "cloudwatch metric buffer full, datums dropped", "dropped", dropped)
	}

	for len(batch) > 0 {
		n := min(len(batch), cloudWatchBatchSize)
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: batch[:n],
		})
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to publish metrics",
				"error", err.Error(),
				"datums", n,
			)
		}
		batch = batch[n:]
	}
}

// Run flushes every interval until ctx is cancelled, then flushes once more
// with a short detached deadline.
func (c *CloudWatch) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			c.Flush(final)
			cancel()
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

var _ Recorder = (*CloudWatch)(nil)

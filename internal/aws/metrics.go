package aws

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metrics publishes custom CloudWatch metrics. A Metrics with an empty namespace
// or nil client drops every datum.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewMetrics binds a CloudWatch client to a namespace.
func NewMetrics(client CloudWatchAPI, namespace string, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// Count records a count datum. Failures are logged, never returned: metrics must
// not fail a checkout.
func (m *Metrics) Count(ctx context.Context, name string, value float64, dims map[string]string) {
	m.put(ctx, name, value, cwtypes.StandardUnitCount, dims)
}

// Value records a unitless datum (e.g. a monetary drift).
func (m *Metrics) Value(ctx context.Context, name string, value float64, dims map[string]string) {
	m.put(ctx, name, value, cwtypes.StandardUnitNone, dims)
}

func (m *Metrics) put(ctx context.Context, name string, value float64, unit cwtypes.StandardUnit, dims map[string]string) {
	if m == nil || m.client == nil || m.namespace == "" {
		return
	}
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(value),
		Unit:       unit,
		Timestamp:  sdkaws.Time(m.nowFunc()),
	}
	for k, v := range dims {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(v),
		})
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.Warn("put metric data failed", zap.String("metric", name), zap.Error(err))
	}
}

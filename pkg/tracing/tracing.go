package tracing

import (
	"context"
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"

	"trade_engine/pkg/logger"
)

var serviceName = "trade_engine"

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// 1 samples everything, 0.1 samples ten percent
	SampleRate float64 `yaml:"sample_rate"`
}

func (c Config) Enabled() bool { return c.Host != "" && c.Port > 0 }

// InitTracer registers a Jaeger tracer as the global tracer. With an empty
// config the global no-op tracer stays in place and the closer does nothing.
func InitTracer(conf Config) (opentracing.Tracer, func(), error) {
	if !conf.Enabled() {
		return opentracing.GlobalTracer(), func() {}, nil
	}
	sampler := &jCfg.SamplerConfig{Type: "const", Param: 1}
	if conf.SampleRate > 0 && conf.SampleRate < 1 {
		sampler = &jCfg.SamplerConfig{Type: "probabilistic", Param: conf.SampleRate}
	}
	cfg := &jCfg.Configuration{
		ServiceName: serviceName,
		Sampler:     sampler,
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, closeFunc(closer), nil
}

func closeFunc(closer io.Closer) func() {
	return func() {
		if err := closer.Close(); err != nil {
			logger.Error("closing jaeger tracer: %v", err)
		}
	}
}

// StartSpan opens a child span of whatever span ctx carries.
func StartSpan(ctx context.Context, op string, tags map[string]interface{}) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	for k, v := range tags {
		span.SetTag(k, v)
	}
	return span, ctx
}

// Finish closes the span and marks it failed when err is set.
func Finish(span opentracing.Span, err error) {
	if err != nil {
		ext.Error.Set(span, true)
		span.LogFields(otlog.Error(err))
	}
	span.Finish()
}

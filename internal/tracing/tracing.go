package tracing

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"

	appLogger "github.com/commshield/commstack/internal/logger"
)

type JaegerConfig struct {
	ServiceName  string  `env:"JAEGER_SERVICE_NAME" envDefault:"commstack"`
	AgentHost    string  `env:"JAEGER_AGENT_HOST" envDefault:"localhost"`
	AgentPort    string  `env:"JAEGER_AGENT_PORT" envDefault:"6831"`
	Enabled      bool    `env:"JAEGER_ENABLED" envDefault:"false"`
	LogSpans     bool    `env:"JAEGER_REPORTER_LOG_SPANS" envDefault:"false"`
	SamplerType  string  `env:"JAEGER_SAMPLER_TYPE" envDefault:"const"`
	SamplerParam float64 `env:"JAEGER_SAMPLER_PARAM" envDefault:"1"`
}

// NewJaegerTracer builds the tracer; returns a no-op tracer when
// tracing is disabled so callers never branch.
func NewJaegerTracer(cfg *JaegerConfig, log appLogger.Logger) (opentracing.Tracer, io.Closer, error) {
	if !cfg.Enabled {
		return opentracing.NoopTracer{}, io.NopCloser(nil), nil
	}

	jaegerCfg := jaegercfg.Configuration{
		ServiceName: cfg.ServiceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  cfg.SamplerType,
			Param: cfg.SamplerParam,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           cfg.LogSpans,
			LocalAgentHostPort: cfg.AgentHost + ":" + cfg.AgentPort,
		},
	}

	tracer, closer, err := jaegerCfg.NewTracer(jaegercfg.Logger(jaeger.StdLogger))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create jaeger tracer")
	}
	log.Infof("Jaeger tracer initialized for %s", cfg.ServiceName)
	return tracer, closer, nil
}

func StartTracerSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, operationName)
}

// TraceErr marks the span failed and records the error message.
func TraceErr(span opentracing.Span, err error) {
	if span == nil || err == nil {
		return
	}
	ext.LogError(span, err)
	span.LogFields(log.String("error.message", err.Error()))
}

package tracing

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/fasttrack/services/delivery/config"
)

func TestDisabledTracerIsSafe(t *testing.T) {
	tracer := Disabled()

	txn := tracer.StartTransaction("sync")
	require.Nil(t, txn)

	segment := tracer.StartSpan("worksheet", txn)
	require.NotNil(t, segment)
	segment.End()

	tracer.RecordError(txn, errors.New("boom"))
	tracer.AddAttribute(txn, "lsp", "ACME")
	tracer.EndTransaction(txn)
	tracer.Close()
}

func TestNewTracerWithoutLicenseKeyIsDisabled(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	require.Nil(t, tracer.StartTransaction("sync"))
}

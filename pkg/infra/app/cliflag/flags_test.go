package cliflag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedFlagSetsKeepOrder(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("postgres").String("postgres.host", "127.0.0.1", "")
	fss.FlagSet("rabbitmq").String("rabbitmq.host", "127.0.0.1", "")
	fss.FlagSet("postgres").Int("postgres.port", 5432, "")

	assert.Equal(t, []string{"postgres", "rabbitmq"}, fss.Order)
	assert.NotNil(t, fss.FlagSets["postgres"].Lookup("postgres.port"))
}

func TestWordSepNormalize(t *testing.T) {
	var fss NamedFlagSets
	fs := fss.FlagSet("pipeline")
	v := fs.String("pipeline.max-retries", "3", "")

	require.NoError(t, fs.Parse([]string{"--pipeline.max_retries=5"}))
	assert.Equal(t, "5", *v)
}

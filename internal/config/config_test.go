package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFlagsOverDefaults(t *testing.T) {
	cfg, err := Load([]string{
		"--configfile=",
		"--postgresdsn=postgres://coordinator@localhost/coordinator",
		"--coordinatorkeypath=/etc/coordinatord/key",
		"--pollinterval=5s",
	})
	require.NoError(t, err)
	require.Equal(t, "postgres://coordinator@localhost/coordinator", cfg.PostgresDSN)
	require.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Equal(t, uint32(144), cfg.RelativeLocktimeBlocks, "unset fields keep their documented default")
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "postgresdsn and coordinatorkeypath are required")

	cfg.PostgresDSN = "postgres://localhost/coordinator"
	cfg.CoordinatorKeyPath = "/etc/coordinatord/key"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresRemoteSigningBaseURLWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.PostgresDSN = "postgres://localhost/coordinator"
	cfg.CoordinatorKeyPath = "/etc/coordinatord/key"
	cfg.RemoteSigning.Enabled = true

	require.Error(t, cfg.Validate())

	cfg.RemoteSigning.BaseURL = "https://keymeld.example.com"
	require.NoError(t, cfg.Validate())
}

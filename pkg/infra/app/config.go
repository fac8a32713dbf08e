package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// loadConfig fills the options from the config file and the environment,
// then re-applies the flags the user set explicitly.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.v

	if file, _ := cmd.Flags().GetString(flagConfig); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".chunkflow"))
		}
		v.AddConfigPath("/etc/chunkflow")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	expandEnvRefs(v)

	v.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(a.envPrefix, "-", "_")))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.options == nil {
		return nil
	}

	var bindErr error
	for _, name := range a.fss.Order {
		if name == "global" {
			continue
		}
		a.fss.FlagSets[name].VisitAll(func(f *pflag.Flag) {
			if err := v.BindEnv(f.Name); err != nil && bindErr == nil {
				bindErr = err
			}
		})
	}
	if bindErr != nil {
		return fmt.Errorf("failed to bind environment: %w", bindErr)
	}

	changed := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, val := range changed {
		if err := cmd.Flags().Set(name, val); err != nil {
			return fmt.Errorf("failed to re-apply flag %s: %w", name, err)
		}
	}
	return nil
}

// expandEnvRefs replaces ${VAR} and $VAR in string values. References to
// unset variables are kept as written.
func expandEnvRefs(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
			name := strings.TrimPrefix(match, "$")
			name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return match
		})
		if expanded != s {
			v.Set(key, expanded)
		}
	}
}

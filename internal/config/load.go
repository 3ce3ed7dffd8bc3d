package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"

	"fleet-reports/internal/sqlutil"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const envPrefix = "FLEETREP"

var defineFlagsOnce sync.Once

// Load resolves the configuration. Later sources win:
//
//	defaults < config file < FLEETREP_* env < flags < secrets read from files or the prompt
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if err := readConfigFile(v, cfgPath); err != nil {
		return nil, err
	}

	// FLEETREP_DATABASE_POOL_MAX_OPEN -> database.pool.max_open
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v)
	nameExplicit := databaseNameExplicitlyConfigured(v)

	if err := loadSecrets(v); err != nil {
		return nil, err
	}
	if err := normalizeDatabase(v, nameExplicit); err != nil {
		return nil, err
	}
	return decodeStrict(v)
}

// readConfigFile reads path, or searches the standard locations for
// fleet-reports.yaml when path is empty. Only an explicit path must exist.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fleet-reports")
		v.SetConfigType("yaml")
		for _, dir := range []string{"/etc/fleet-reports/", "$HOME/.fleet-reports", "."} {
			v.AddConfigPath(dir)
		}
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return nil
	case path != "":
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	case errors.As(err, &notFound):
		return nil
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}
}

// secretSources pairs each secret setting with the setting naming a file
// it can be read from. A directly configured value always wins.
var secretSources = []struct {
	key, fileKey, what string
}{
	{"database.dsn", "database.dsn_file", "database DSN"},
	{"database.password", "database.password_file", "database password"},
}

func loadSecrets(v *viper.Viper) error {
	if err := checkStdinSources(v); err != nil {
		return err
	}
	for _, src := range secretSources {
		path := v.GetString(src.fileKey)
		if v.GetString(src.key) != "" || path == "" {
			continue
		}
		secret, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s file: %w", src.what, err)
		}
		v.Set(src.key, secret)
	}

	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}
	return nil
}

// normalizeDatabase fills the driver's default port and pins
// database.database to the name the server will connect to. A DSN that
// names its own database replaces the built-in default name.
func normalizeDatabase(v *viper.Viper, nameExplicit bool) error {
	dialect, err := sqlutil.ParseDialect(v.GetString("database.driver"))
	if err != nil {
		return err
	}
	if v.GetInt("database.port") == 0 {
		v.Set("database.port", defaultPort(dialect))
	}

	dsn := strings.TrimSpace(v.GetString("database.dsn"))
	if dsn != "" && !nameExplicit && strings.TrimSpace(v.GetString("database.database")) == defaultDatabaseName {
		v.Set("database.database", "")
	}

	name, _, err := resolveEffectiveDatabaseName(v.GetString("database.driver"), v.GetString("database.database"), dsn)
	if err != nil {
		return fmt.Errorf("failed to resolve effective database name: %w", err)
	}
	v.Set("database.database", name)
	return nil
}

// decodeStrict unmarshals v into a Config and rejects keys the Config does
// not declare, so a misspelled or retired setting fails loudly.
func decodeStrict(v *viper.Viper) (*Config, error) {
	var cfg Config
	hooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToStringSliceHookFunc(","),
	)
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// bindChangedFlagsToViper copies explicitly set flags into v so that flags
// beat env, file and defaults. Only dotted names are configuration keys;
// process flags such as --config and --version are skipped.
func bindChangedFlagsToViper(v *viper.Viper) {
	flags := pflag.CommandLine
	flags.Visit(func(f *pflag.Flag) {
		if !strings.Contains(f.Name, ".") {
			return
		}
		v.Set(f.Name, typedFlagValue(flags, f))
	})
}

// typedFlagValue returns the flag's value in its declared Go type so viper
// does not have to parse strings back into durations and slices.
func typedFlagValue(flags *pflag.FlagSet, f *pflag.Flag) any {
	var (
		val any
		err error
	)
	switch f.Value.Type() {
	case "string":
		val, err = flags.GetString(f.Name)
	case "int":
		val, err = flags.GetInt(f.Name)
	case "int64":
		val, err = flags.GetInt64(f.Name)
	case "bool":
		val, err = flags.GetBool(f.Name)
	case "float64":
		val, err = flags.GetFloat64(f.Name)
	case "duration":
		val, err = flags.GetDuration(f.Name)
	case "stringSlice":
		val, err = flags.GetStringSlice(f.Name)
	default:
		return f.Value.String()
	}
	if err != nil {
		return f.Value.String()
	}
	return val
}

func defaultPort(dialect sqlutil.Dialect) int {
	if dialect == sqlutil.DialectPostgres {
		return 5432
	}
	return 3306
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Database password: ")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	return string(pwd), err
}

// readSecretFile reads a trimmed secret from path, or from stdin when path is "@-".
func readSecretFile(path string) (string, error) {
	read := func() ([]byte, error) { return os.ReadFile(path) }
	if path == "@-" {
		read = func() ([]byte, error) { return io.ReadAll(os.Stdin) }
	}
	data, err := read()
	return strings.TrimSpace(string(data)), err
}

// stdinSecretKeys are the settings that accept "@-" to read from stdin.
var stdinSecretKeys = []string{"database.dsn_file", "database.password_file"}

// checkStdinSources fails when more than one secret would be read from stdin.
func checkStdinSources(v *viper.Viper) error {
	var fromStdin []string
	for _, key := range stdinSecretKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			fromStdin = append(fromStdin, key)
		}
	}
	if len(fromStdin) < 2 {
		return nil
	}
	return fmt.Errorf("only one setting may read from stdin (@-), got %s", strings.Join(fromStdin, ", "))
}

// databaseNameExplicitlyConfigured reports whether database.database came
// from the env, a flag or the config file rather than the default.
func databaseNameExplicitlyConfigured(v *viper.Viper) bool {
	_, inEnv := os.LookupEnv(envPrefix + "_DATABASE_DATABASE")
	flag := pflag.CommandLine.Lookup("database.database")
	return inEnv || (flag != nil && flag.Changed) || v.InConfig("database.database")
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		parts := []string{}
		if raw := strings.TrimSpace(data.(string)); raw != "" {
			parts = strings.Split(raw, sep)
		}
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts, nil
	}
}
